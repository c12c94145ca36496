package logentry

import "github.com/mileusna/useragent"

// ParseUserAgent enriches metadata for HTTP-sourced entries that carry a
// "user_agent" string, splitting it into browser/os/device metadata keys.
// It is an optional Field Registry helper; nothing else depends on it.
func ParseUserAgent(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	ua := useragent.Parse(raw)
	out := map[string]string{
		"ua_name":    ua.Name,
		"ua_version": ua.Version,
		"ua_os":      ua.OS,
		"ua_device":  deviceClass(ua),
	}
	return out
}

func deviceClass(ua useragent.UserAgent) string {
	switch {
	case ua.Bot:
		return "bot"
	case ua.Mobile:
		return "mobile"
	case ua.Tablet:
		return "tablet"
	case ua.Desktop:
		return "desktop"
	default:
		return "unknown"
	}
}
