package transfer

type WordPressPostRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Status  string `json:"status"`
}

type WordPressPostResponse struct {
	ID   int64  `json:"id"`
	Link string `json:"link"`
}
