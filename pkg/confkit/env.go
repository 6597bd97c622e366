package confkit

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvString returns the trimmed value of key and whether it was set to a non-empty value.
func EnvString(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// EnvBool parses key as a boolean. Besides strconv forms it accepts yes/no and on/off.
func EnvBool(key string) (value bool, set bool, err error) {
	raw, ok := EnvString(key)
	if !ok {
		return false, false, nil
	}
	switch strings.ToLower(raw) {
	case "yes", "on":
		return true, true, nil
	case "no", "off":
		return false, true, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, true, fmt.Errorf("%s: invalid boolean %q", key, raw)
	}
	return b, true, nil
}

// EnvDuration parses key as a Go duration; a bare integer is read as seconds.
func EnvDuration(key string) (value time.Duration, set bool, err error) {
	raw, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	if n, convErr := strconv.ParseInt(raw, 10, 64); convErr == nil {
		return time.Duration(n) * time.Second, true, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, true, fmt.Errorf("%s: invalid duration %q", key, raw)
	}
	return d, true, nil
}

// EnvInt parses key as a base-10 integer.
func EnvInt(key string) (value int, set bool, err error) {
	raw, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, true, fmt.Errorf("%s: invalid integer %q", key, raw)
	}
	return n, true, nil
}
