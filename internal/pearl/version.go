package pearl

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const firmwareVersionPath = BasePathV2 + "/system/firmware/version"

// DetectAPIBase probes the firmware version once and selects the versioned API when allowed by
// configuration and the firmware is at least Config.V2MinFirmware. Probe failures keep /api.
// It returns the selected base path.
func (c *Client) DetectAPIBase(ctx context.Context) string {
	c.setBasePath(BasePathV1)
	if !c.cfg.UseAPIv2 {
		return BasePathV1
	}

	minVer, err := ParseFirmwareVersion(c.cfg.V2MinFirmware)
	if err != nil {
		c.log.Warn("invalid firmware threshold; staying on /api", zap.String("threshold", c.cfg.V2MinFirmware), zap.Error(err))
		return BasePathV1
	}

	raw, err := c.exchange(ctx, http.MethodGet, firmwareVersionPath, nil)
	if err != nil {
		c.log.Debug("API v2.0 check failed", zap.Error(err))
		return BasePathV1
	}
	var version string
	if err := json.Unmarshal(raw, &version); err != nil {
		var fw struct {
			Version string `json:"version"`
		}
		if err := json.Unmarshal(raw, &fw); err != nil || fw.Version == "" {
			c.log.Debug("API v2.0 check failed: unexpected version payload", zap.ByteString("body", raw))
			return BasePathV1
		}
		version = fw.Version
	}
	v, err := ParseFirmwareVersion(version)
	if err != nil {
		c.log.Debug("API v2.0 check failed", zap.String("version", version), zap.Error(err))
		return BasePathV1
	}
	if v >= minVer {
		c.setBasePath(BasePathV2)
	}
	c.log.Info("API base selected", zap.String("firmware", version), zap.String("base", c.BasePath()))
	return c.BasePath()
}

// ParseFirmwareVersion turns "a.b.c" into a*10000 + b*100 + c. Trailing non-digits in a
// component ("1r2") are ignored; missing components count as zero.
func ParseFirmwareVersion(v string) (int, error) {
	parts := strings.Split(strings.TrimSpace(v), ".")
	if len(parts) == 0 || parts[0] == "" {
		return 0, fmt.Errorf("empty firmware version")
	}
	weights := []int{10000, 100, 1}
	total := 0
	for i, w := range weights {
		if i >= len(parts) {
			break
		}
		n, err := leadingInt(parts[i])
		if err != nil {
			return 0, fmt.Errorf("firmware version %q: %w", v, err)
		}
		total += n * w
	}
	return total, nil
}

func leadingInt(s string) (int, error) {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, fmt.Errorf("component %q is not numeric", s)
	}
	return strconv.Atoi(s[:end])
}
