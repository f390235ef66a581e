package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"reelgen/internal/domain"
)

const defaultMaxUploadBytes = 25 << 20

// payload is a request body read either from JSON or from a multipart form.
// JSON bodies carry binary fields as base64 strings under the same names the
// multipart form uses for file parts. A raw audio/* body is treated as the
// "audio" file.
type payload struct {
	values map[string]string
	files  map[string][]byte
}

func (a *App) readPayload(w http.ResponseWriter, r *http.Request) (*payload, error) {
	limit := a.MaxUploadBytes
	if limit <= 0 {
		limit = defaultMaxUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	p := &payload{values: map[string]string{}, files: map[string][]byte{}}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch {
	case mediaType == "multipart/form-data":
		if err := r.ParseMultipartForm(limit); err != nil {
			return nil, bodyError(err)
		}
		for key, vals := range r.MultipartForm.Value {
			if len(vals) > 0 {
				p.values[key] = vals[0]
			}
		}
		for key, headers := range r.MultipartForm.File {
			if len(headers) == 0 {
				continue
			}
			f, err := headers[0].Open()
			if err != nil {
				return nil, fmt.Errorf("%w: open %s: %v", domain.ErrInvalidInput, key, err)
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				return nil, bodyError(err)
			}
			p.files[key] = data
		}
	case strings.HasPrefix(mediaType, "audio/"):
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, bodyError(err)
		}
		p.files["audio"] = data
		if rate := r.URL.Query().Get("sample_rate"); rate != "" {
			p.values["sample_rate"] = rate
		}
	default:
		var raw map[string]any
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			return nil, bodyError(err)
		}
		for key, v := range raw {
			switch val := v.(type) {
			case string:
				p.values[key] = val
			case float64:
				p.values[key] = strconv.FormatFloat(val, 'f', -1, 64)
			case nil:
			default:
				return nil, fmt.Errorf("%w: field %q must be a string or number", domain.ErrInvalidInput, key)
			}
		}
	}
	return p, nil
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return fmt.Errorf("%w: body exceeds %d bytes", domain.ErrInvalidInput, tooLarge.Limit)
	}
	return fmt.Errorf("%w: malformed body: %v", domain.ErrInvalidInput, err)
}

func (p *payload) value(name string) string {
	return strings.TrimSpace(p.values[name])
}

// file returns the named binary field. ok is false when the field is absent;
// an uploaded but empty file is returned as a non-nil empty slice.
func (p *payload) file(name string) (data []byte, ok bool, err error) {
	if data, ok := p.files[name]; ok {
		if data == nil {
			data = []byte{}
		}
		return data, true, nil
	}
	raw, ok := p.values[name]
	if !ok {
		return nil, false, nil
	}
	data, err = base64.StdEncoding.DecodeString(strings.TrimSpace(raw))
	if err != nil {
		return nil, true, fmt.Errorf("%w: %s is not valid base64", domain.ErrInvalidInput, name)
	}
	return data, true, nil
}

func (p *payload) int(name string) (int, error) {
	raw := p.value(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", domain.ErrInvalidInput, name)
	}
	return n, nil
}

func (a *App) writeArtifact(w http.ResponseWriter, name string, art *domain.MediaArtifact) {
	w.Header().Set("Content-Type", art.ContentType())
	w.Header().Set("Content-Length", strconv.Itoa(art.Len()))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%s%s", name, art.Extension()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(art.Bytes())
}
