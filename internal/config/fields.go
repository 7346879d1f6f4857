package config

import "strconv"

// Field describes one configuration input as a host renders it.
type Field struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Label   string `json:"label"`
	Width   int    `json:"width,omitempty"`
	Default any    `json:"default"`
	Regex   string `json:"regex,omitempty"`
	Min     *int   `json:"min,omitempty"`
	Max     *int   `json:"max,omitempty"`
}

const (
	ipPattern   = `/^(?:(?:25[0-5]|2[0-4]\d|1?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|1?\d?\d)$/`
	portPattern = `/^([1-9]|[1-8][0-9]|9[0-9]|[1-8][0-9]{2}|9[0-8][0-9]|99[0-9]|[1-8][0-9]{3}|9[0-8][0-9]{2}|99[0-8][0-9]|999[0-9]|[1-5][0-9]{4}|6[0-4][0-9]{3}|65[0-4][0-9]{2}|655[0-2][0-9]|6553[0-5])$/`
)

// Fields returns the configuration inputs with defaults taken from d.
func Fields(d *Config) []Field {
	if d == nil {
		d = Default()
	}
	lo, hi := MinPollSeconds, MaxPollSeconds
	return []Field{
		{Type: "textinput", ID: "host", Label: "Target IP", Width: 6, Default: d.Device.Host, Regex: ipPattern},
		{Type: "textinput", ID: "host_port", Label: "Target Port", Width: 6, Default: strconv.Itoa(d.Device.Port), Regex: portPattern},
		{Type: "textinput", ID: "username", Label: "Username", Width: 6, Default: d.Device.Username},
		{Type: "textinput", ID: "password", Label: "Password", Width: 6, Default: ""},
		{Type: "number", ID: "pollfreq", Label: "Feedback polling frequency in seconds", Width: 6, Default: d.Poll.FrequencySec, Min: &lo, Max: &hi},
		{Type: "checkbox", ID: "use_api_v2", Label: "Use API v2.0 (if available)", Default: d.Device.UseAPIv2},
		{Type: "checkbox", ID: "metadata_enabled", Label: "Enable legacy metadata access", Default: d.Metadata.Enabled},
		{Type: "checkbox", ID: "verbose", Label: "Enable verbose logging", Default: d.Verbose},
	}
}
