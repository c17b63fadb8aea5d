package transfer

type TikTokUploadResponse struct {
	Data  TiktokPublishData `json:"data"`
	Error TiktokError       `json:"error"`
}

type TiktokPublishData struct {
	PublishID string `json:"publish_id"`
}

type TiktokError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	LogID   string `json:"log_id"`
}

type VideoPostInfo struct {
	Title                 string `json:"title"`
	PrivacyLevel          string `json:"privacy_level"`
	DisableDuet           bool   `json:"disable_duet"`
	DisableComment        bool   `json:"disable_comment"`
	DisableStitch         bool   `json:"disable_stitch"`
	VideoCoverTimestampMs int    `json:"video_cover_timestamp_ms"`
}

type PhotoPostInfo struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	PrivacyLevel   string `json:"privacy_level"`
	DisableComment bool   `json:"disable_comment"`
	AutoAddMusic   bool   `json:"auto_add_music"`
}

type VideoSourceInfo struct {
	Source   string `json:"source"`
	VideoURL string `json:"video_url"`
}

type PhotoSourceInfo struct {
	Source          string   `json:"source"`
	PhotoCoverIndex int      `json:"photo_cover_index"`
	PhotoImages     []string `json:"photo_images"`
}

type VideoUploadRequest struct {
	PostInfo   VideoPostInfo   `json:"post_info"`
	SourceInfo VideoSourceInfo `json:"source_info"`
}

type PhotoUploadRequest struct {
	PostInfo   PhotoPostInfo   `json:"post_info"`
	SourceInfo PhotoSourceInfo `json:"source_info"`
	PostMode   string          `json:"post_mode"`
	MediaType  string          `json:"media_type"`
}

type TiktokTokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int    `json:"expires_in"`
	OpenID           string `json:"open_id"`
	RefreshExpiresIn int    `json:"refresh_expires_in"`
	RefreshToken     string `json:"refresh_token"`
	Scope            string `json:"scope"`
	TokenType        string `json:"token_type"`
}
