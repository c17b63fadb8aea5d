package transfer

// GraphObject is the reply of Graph API create calls. Photo uploads return
// both ids; feed posts only id.
type GraphObject struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
}

type ContainerStatus struct {
	ID         string `json:"id"`
	StatusCode string `json:"status_code"`
	Status     string `json:"status"`
}

type StoryPublishResponse struct {
	Success bool   `json:"success"`
	PostID  string `json:"post_id"`
}

type InstagramRefreshResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}
