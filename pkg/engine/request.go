package engine

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/fuzzhound/fuzzhound/pkg/defaults"
	"github.com/fuzzhound/fuzzhound/pkg/fetch"
	"github.com/fuzzhound/fuzzhound/pkg/surface"
)

// buildRequest assembles the node's request with value substituted into
// the target field. Every other field carries its benign value, so a
// test request differs from the baseline in exactly one place.
func buildRequest(node *surface.Node, target surface.Field, value string) (*fetch.Request, error) {
	u, err := url.Parse(node.URL)
	if err != nil {
		return nil, fmt.Errorf("engine: node url: %w", err)
	}

	query := url.Values{}
	body := url.Values{}
	headers := map[string]string{}

	for _, f := range node.Fields {
		v := benignValue(f)
		if f.Identity() == target.Identity() {
			v = value
		}
		switch f.Location {
		case surface.InQuery:
			query.Set(f.Name, v)
		case surface.InBody:
			body.Set(f.Name, v)
		case surface.InHeader:
			headers[f.Name] = v
		case surface.InPath:
			newPath, err := substitutePath(u.Path, f.Sample, v)
			if err != nil {
				return nil, err
			}
			u.Path = newPath
		}
	}

	u.RawQuery = query.Encode()
	req := fetch.NewRequest(node.Method, u.String())
	req.Header.Set("Accept", defaults.AcceptHTML)
	if len(body) > 0 {
		req.Body = body.Encode()
		req.Header.Set("Content-Type", defaults.ContentTypeForm)
	}
	for name, v := range headers {
		req.Header.Set(name, v)
	}
	return req, nil
}

// baselineRequest is the unmodified-value request for a node: every
// field at its benign value.
func baselineRequest(node *surface.Node) (*fetch.Request, error) {
	return buildRequest(node, surface.Field{}, "")
}

// benignValue picks the value a field carries when it is not the one
// under test: the observed sample, or a harmless filler typed to match.
func benignValue(f surface.Field) string {
	if f.Sample != "" {
		return f.Sample
	}
	switch f.Type {
	case surface.TypeNumeric:
		return "1"
	case surface.TypeBoolean:
		return "true"
	default:
		return "test"
	}
}

// substitutePath swaps the path segment equal to sample for value. Path
// fields without a recoverable segment cannot be probed.
func substitutePath(path, sample, value string) (string, error) {
	if sample == "" {
		return "", ErrPathFieldUnresolved
	}
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if seg == sample {
			segments[i] = url.PathEscape(value)
			return strings.Join(segments, "/"), nil
		}
	}
	return "", ErrPathFieldUnresolved
}
