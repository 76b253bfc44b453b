package engine

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/neoromantics/focus/internal/sitelist"
)

// Setting keys in the store.
const (
	keyAPIKey      = "apiKey"
	keyGoal        = "currentTask"
	keyBlockList   = "blockList"
	keyAllowList   = "allowList"
	keyAllowedURLs = "allowedUrls"
	keyEnabled     = "extensionEnabled"
	keyInstallTime = "installTime"
)

func (e *Engine) loadSettings() error {
	read := func(key string) (string, bool, error) {
		v, ok, err := e.store.GetSetting(key)
		if err != nil {
			return "", false, fmt.Errorf("loading setting %s: %w", key, err)
		}
		return v, ok, nil
	}

	var next State
	var err error

	// A stored empty key is an explicit clear and overrides the default.
	key, stored, err := read(keyAPIKey)
	if err != nil {
		return err
	}
	next.APIKey = key
	if !stored {
		next.APIKey = e.opts.DefaultAPIKey
	}
	if next.Goal, _, err = read(keyGoal); err != nil {
		return err
	}

	raw, ok, err := read(keyBlockList)
	if err != nil {
		return err
	}
	if ok {
		next.BlockList = sitelist.Sanitize(decodeList(keyBlockList, raw))
	} else {
		next.BlockList = sitelist.Sanitize(e.opts.DefaultBlockList)
	}

	if raw, _, err = read(keyAllowList); err != nil {
		return err
	}
	next.AllowList = sitelist.Sanitize(decodeList(keyAllowList, raw))

	if raw, _, err = read(keyAllowedURLs); err != nil {
		return err
	}
	next.AllowedURLs = sitelist.LoadSignatures(decodeList(keyAllowedURLs, raw))

	if raw, _, err = read(keyEnabled); err != nil {
		return err
	}
	next.Enabled = raw != "false"

	e.mu.Lock()
	e.state = next
	e.mu.Unlock()
	return nil
}

func encodeList(list []string) string {
	if list == nil {
		list = []string{}
	}
	data, _ := json.Marshal(list)
	return string(data)
}

func decodeList(key, raw string) []string {
	if raw == "" {
		return nil
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		slog.Warn("ignoring unreadable list setting", "key", key, "error", err)
		return nil
	}
	return list
}

func formatBool(b bool) string {
	return strconv.FormatBool(b)
}
