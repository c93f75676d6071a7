package handlers

// Link is a navigation entry merged into user representations.
type Link struct {
	Rel    string `json:"rel"`
	Href   string `json:"href"`
	Method string `json:"method"`
}

func userLinks(userID string) []Link {
	base := "/api/v1/users/" + userID
	return []Link{
		{Rel: "self", Href: base, Method: "GET"},
		{Rel: "profile-picture", Href: base + "/profile-picture", Method: "GET"},
		{Rel: "upload-profile-picture", Href: base + "/profile-picture", Method: "POST"},
		{Rel: "profile-picture-history", Href: base + "/profile-picture/history", Method: "GET"},
	}
}
