package domain

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Settings-document keys under a models.<provider> sub-record.
const (
	KeyAPIKey         = "apiKey"
	KeyOAuthToken     = "oauth_token"
	KeyOAuthRefresh   = "oauth_refresh_token"
	KeyOAuthExpiresAt = "oauth_expires_at"
	KeyAuthMethod     = "auth_method"
	KeyModelsProvider = "models.provider"
	modelsSectionPath = "models"
)

var ErrNotAnObject = errors.New("settings payload is not a JSON object")

// Document is the in-memory form of the persisted settings document. It
// wraps the raw JSON bytes so that every read and write goes through
// path-based access; the broker never keeps a long-lived copy of it.
type Document struct {
	raw []byte
}

func NewDocument(raw []byte) *Document {
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	return &Document{raw: raw}
}

func (d *Document) Bytes() []byte {
	return d.raw
}

func (d *Document) Get(path string) gjson.Result {
	return gjson.GetBytes(d.raw, path)
}

func (d *Document) Set(path string, value any) error {
	raw, err := sjson.SetBytes(d.raw, path, value)
	if err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	d.raw = raw

	return nil
}

// SetRaw writes an already-encoded JSON value at path.
func (d *Document) SetRaw(path string, rawJSON string) error {
	raw, err := sjson.SetRawBytes(d.raw, path, []byte(rawJSON))
	if err != nil {
		return fmt.Errorf("set raw %s: %w", path, err)
	}
	d.raw = raw

	return nil
}

func (d *Document) Delete(path string) error {
	raw, err := sjson.DeleteBytes(d.raw, path)
	if err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	d.raw = raw

	return nil
}

// MergeShallow merges the top-level keys of a partial JSON object into the
// document. Each incoming key replaces the existing value wholesale; nested
// structures are not merged recursively.
func (d *Document) MergeShallow(partial []byte) error {
	if !gjson.ValidBytes(partial) {
		return ErrNotAnObject
	}

	parsed := gjson.ParseBytes(partial)
	if !parsed.IsObject() {
		return ErrNotAnObject
	}

	var mergeErr error
	parsed.ForEach(func(key, value gjson.Result) bool {
		raw, err := sjson.SetRawBytes(d.raw, key.String(), []byte(value.Raw))
		if err != nil {
			mergeErr = fmt.Errorf("merge key %s: %w", key.String(), err)
			return false
		}
		d.raw = raw

		return true
	})

	return mergeErr
}

// ModelPath returns the document path of a key inside a provider
// sub-record, e.g. models.openai.apiKey.
func ModelPath(p Provider, key string) string {
	return modelsSectionPath + "." + string(p) + "." + key
}
