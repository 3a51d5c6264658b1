package alphavantage

import (
	"strconv"
	"strings"

	"github.com/Jeffail/gabs/v2"
)

// Alpha Vantage encodes most numbers as strings ("05. price": "182.3100")
// but some payloads carry real JSON numbers. These helpers coerce either
// representation and return nil/zero for absent or unparseable values.

func stringAt(c *gabs.Container, hierarchy ...string) string {
	v, _ := c.Search(hierarchy...).Data().(string)
	return v
}

func floatAt(c *gabs.Container, hierarchy ...string) *float64 {
	return coerceFloat(c.Search(hierarchy...))
}

func intAt(c *gabs.Container, hierarchy ...string) int64 {
	switch d := c.Search(hierarchy...).Data().(type) {
	case float64:
		return int64(d)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(d), 10, 64)
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}

func coerceFloat(c *gabs.Container) *float64 {
	switch d := c.Data().(type) {
	case float64:
		return &d
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(d), 64)
		if err != nil {
			return nil
		}
		return &f
	}
	return nil
}
