package domain

// Attribution is what a landing page says about an image's author and license.
type Attribution struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Author      string `json:"author,omitempty"`
	LicenseURL  string `json:"license_url,omitempty"`
}

// Empty reports whether nothing was found.
func (a Attribution) Empty() bool {
	return a == Attribution{}
}
