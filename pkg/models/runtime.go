package models

// RuntimeInfo tells clients where the locally bound backend lives, so UIs
// never have to guess the port.
type RuntimeInfo struct {
	HTTPBaseURL string `json:"http_base_url"`
	WSBaseURL   string `json:"ws_base_url"`
	Port        int    `json:"port"`
}
