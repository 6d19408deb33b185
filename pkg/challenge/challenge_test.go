package challenge

import (
	"net/http"
	"testing"

	"github.com/fuzzhound/fuzzhound/pkg/fetch"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name         string
		resp         *fetch.Response
		wantKind     Kind
		wantProvider string
	}{
		{
			name: "cloudflare browser check",
			resp: &fetch.Response{
				Status: 503,
				Header: http.Header{"Server": []string{"cloudflare"}},
				Body:   "<title>Just a moment...</title>",
			},
			wantKind:     KindBotCheck,
			wantProvider: "cloudflare",
		},
		{
			name: "cloudflare challenge marker",
			resp: &fetch.Response{
				Status: 403,
				Header: http.Header{"Server": []string{"cloudflare"}},
				Body:   `<form id="challenge-form" action="/?cf_chl_f_tk=x">`,
			},
			wantKind:     KindBotCheck,
			wantProvider: "cloudflare",
		},
		{
			name: "recaptcha widget",
			resp: &fetch.Response{
				Status: 200,
				Body:   `<div class="g-recaptcha" data-sitekey="6LfKey"></div>`,
			},
			wantKind:     KindCAPTCHA,
			wantProvider: "recaptcha",
		},
		{
			name: "recaptcha v3 script",
			resp: &fetch.Response{
				Status: 200,
				Body:   `<script src="https://www.google.com/recaptcha/api.js?render=6LfKey"></script>`,
			},
			wantKind:     KindCAPTCHA,
			wantProvider: "recaptcha",
		},
		{
			name: "hcaptcha widget",
			resp: &fetch.Response{
				Status: 200,
				Body:   `<div class="h-captcha" data-sitekey="10000000-ffff"></div>`,
			},
			wantKind:     KindCAPTCHA,
			wantProvider: "hcaptcha",
		},
		{
			name:         "rate limited",
			resp:         &fetch.Response{Status: 429, Body: "slow down"},
			wantKind:     KindRateBlock,
			wantProvider: "generic",
		},
		{
			name: "generic captcha text",
			resp: &fetch.Response{
				Status: 200,
				Body:   "<p>Please verify you are human to continue</p>",
			},
			wantKind:     KindCAPTCHA,
			wantProvider: "generic",
		},
		{
			name:     "plain page",
			resp:     &fetch.Response{Status: 200, Body: "<html><body>welcome</body></html>"},
			wantKind: KindNone,
		},
		{
			name: "403 without challenge markers",
			resp: &fetch.Response{
				Status: 403,
				Header: http.Header{"Server": []string{"nginx"}},
				Body:   "<h1>Forbidden</h1>",
			},
			wantKind: KindNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			det, blocked := Detect(tt.resp)
			if tt.wantKind == KindNone {
				if blocked {
					t.Fatalf("Detect = %+v, want no detection", det)
				}
				return
			}
			if !blocked {
				t.Fatal("Detect found nothing")
			}
			if det.Kind != tt.wantKind {
				t.Errorf("kind = %s, want %s", det.Kind, tt.wantKind)
			}
			if det.Provider != tt.wantProvider {
				t.Errorf("provider = %s, want %s", det.Provider, tt.wantProvider)
			}
		})
	}
}

func TestDetectNil(t *testing.T) {
	if _, blocked := Detect(nil); blocked {
		t.Error("nil response detected as blocked")
	}
}

func TestSiteKey(t *testing.T) {
	body := `<div class="g-recaptcha" data-sitekey="6LfKeyValue123"></div>`
	if got := SiteKey(body); got != "6LfKeyValue123" {
		t.Errorf("SiteKey = %q", got)
	}
	if got := SiteKey("<p>no widget</p>"); got != "" {
		t.Errorf("SiteKey on plain body = %q", got)
	}
}
