package oracle

import (
	"strings"
	"testing"
	"time"

	"github.com/fuzzhound/fuzzhound/pkg/fetch"
	"github.com/fuzzhound/fuzzhound/pkg/payload"
)

func resp(status int, body string) *fetch.Response {
	return &fetch.Response{Status: status, Body: body, Duration: 100 * time.Millisecond}
}

func testOracle() *Oracle {
	return New(&Config{TimingThreshold: 3 * time.Second, SizeDelta: 100})
}

func TestConfidenceOrdering(t *testing.T) {
	if !(Informational < Likely && Likely < Confirmed) {
		t.Fatal("confidence tiers out of order")
	}
}

func TestReflectedScriptConfirmed(t *testing.T) {
	o := testOracle()
	p := payload.Payload{Class: payload.ClassXSS, Value: "<script>x</script>"}
	baseline := resp(200, "<html><body>value was 42</body></html>")
	test := resp(200, "<html><body>value was <script>x</script></body></html>")

	v, ok := o.Classify(baseline, test, p)
	if !ok {
		t.Fatal("expected a verdict")
	}
	if v.Class != payload.ClassXSS {
		t.Errorf("class = %s, want xss", v.Class)
	}
	if v.Confidence != Confirmed {
		t.Errorf("confidence = %s, want confirmed", v.Confidence)
	}
	if v.Rule != "reflected-unencoded" {
		t.Errorf("rule = %s", v.Rule)
	}
	if !strings.Contains(v.Evidence, "<script>x</script>") {
		t.Errorf("evidence %q missing payload", v.Evidence)
	}
}

func TestIdenticalResponsesNoVerdict(t *testing.T) {
	o := testOracle()
	body := "<html><body>stable page</body></html>"
	classes := append(payload.Classes(), ClassServerError)
	for _, class := range classes {
		p := payload.Payload{Class: class, Value: "<script>x</script>"}
		if v, ok := o.Classify(resp(200, body), resp(200, body), p); ok {
			t.Errorf("class %s: verdict %+v from identical responses", class, v)
		}
	}
}

func TestEncodedReflectionInformational(t *testing.T) {
	o := testOracle()
	p := payload.Payload{Class: payload.ClassXSS, Value: `<img src=x onerror=alert(1)>`}
	baseline := resp(200, "<p>hello</p>")
	test := resp(200, "<p>&lt;img src=x onerror=alert(1)&gt;</p>")

	v, ok := o.Classify(baseline, test, p)
	if !ok {
		t.Fatal("expected a verdict")
	}
	if v.Confidence != Informational || v.Rule != "reflected-encoded" {
		t.Errorf("got %s/%s, want informational/reflected-encoded", v.Confidence, v.Rule)
	}
}

func TestDOMDeltaConfirmed(t *testing.T) {
	o := testOracle()
	p := payload.Payload{Class: payload.ClassXSS, Value: "<svg onload=alert(1)>"}
	baseline := resp(200, "<p>form</p>")
	baseline.DOM = "<html><body><p>form</p></body></html>"
	test := resp(200, "<p>form</p>")
	test.DOM = "<html><body><p>form</p><svg onload=alert(1)></body></html>"

	v, ok := o.Classify(baseline, test, p)
	if !ok {
		t.Fatal("expected a verdict")
	}
	if v.Rule != "dom-delta" || v.Confidence != Confirmed {
		t.Errorf("got %s/%s, want confirmed/dom-delta", v.Confidence, v.Rule)
	}
}

func TestSQLErrorSignature(t *testing.T) {
	o := testOracle()
	p := payload.Payload{Class: payload.ClassSQLI, Value: "'"}

	t.Run("signature in test only", func(t *testing.T) {
		baseline := resp(200, "<html>results</html>")
		test := resp(500, "<html>You have an error in your SQL syntax near ''' at line 1</html>")
		v, ok := o.Classify(baseline, test, p)
		if !ok {
			t.Fatal("expected a verdict")
		}
		if v.Confidence != Confirmed || v.Rule != "sql-error" {
			t.Errorf("got %s/%s", v.Confidence, v.Rule)
		}
		if !strings.Contains(v.Diff, "mysql") {
			t.Errorf("diff %q missing dialect hint", v.Diff)
		}
		if !strings.Contains(v.Evidence, "SQL syntax") {
			t.Errorf("evidence %q missing signature", v.Evidence)
		}
	})

	t.Run("signature in both is suppressed", func(t *testing.T) {
		noisy := "<footer>powered by MySQL, You have an error in your SQL syntax tips</footer>"
		v, ok := o.Classify(resp(200, noisy), resp(200, noisy+" extra"), p)
		if ok && v.Rule == "sql-error" {
			t.Errorf("sql-error fired despite baseline noise: %+v", v)
		}
	})
}

func TestTimingDelta(t *testing.T) {
	o := testOracle()
	p := payload.Payload{Class: payload.ClassSQLI, Value: "' AND SLEEP(5)--"}
	baseline := resp(200, "ok")
	test := resp(200, "ok ")
	test.Duration = 4 * time.Second

	v, ok := o.Classify(baseline, test, p)
	if !ok {
		t.Fatal("expected a verdict")
	}
	if v.Rule != "timing-delta" || v.Confidence != Likely {
		t.Errorf("got %s/%s, want likely/timing-delta", v.Confidence, v.Rule)
	}

	test.Duration = 2 * time.Second
	if v, ok := o.Classify(baseline, test, p); ok && v.Rule == "timing-delta" {
		t.Error("timing-delta fired below threshold")
	}
}

func TestBooleanDelta(t *testing.T) {
	o := testOracle()
	p := payload.Payload{Class: payload.ClassSQLI, Value: "' AND '1'='2"}
	baseline := resp(200, strings.Repeat("a", 1000))

	v, ok := o.Classify(baseline, resp(200, strings.Repeat("a", 400)), p)
	if !ok {
		t.Fatal("expected a verdict")
	}
	if v.Rule != "boolean-delta" || v.Confidence != Likely {
		t.Errorf("got %s/%s, want likely/boolean-delta", v.Confidence, v.Rule)
	}

	if v, ok := o.Classify(baseline, resp(200, strings.Repeat("a", 1050)), p); ok && v.Rule == "boolean-delta" {
		t.Error("boolean-delta fired below size threshold")
	}
}

func TestSSRFIndicator(t *testing.T) {
	o := testOracle()
	p := payload.Payload{Class: payload.ClassSSRF, Value: "http://169.254.169.254/latest/meta-data/"}
	baseline := resp(200, "<p>preview unavailable</p>")
	test := resp(200, "ami-id\nami-launch-index\nhostname\ninstance-id\n")

	v, ok := o.Classify(baseline, test, p)
	if !ok {
		t.Fatal("expected a verdict")
	}
	if v.Confidence != Confirmed || v.Rule != "ssrf-indicator" {
		t.Errorf("got %s/%s", v.Confidence, v.Rule)
	}
}

func TestTraversalRules(t *testing.T) {
	o := testOracle()
	p := payload.Payload{Class: payload.ClassTraversal, Value: "../../../etc/passwd"}

	t.Run("file content confirmed", func(t *testing.T) {
		test := resp(200, "root:x:0:0:root:/root:/bin/bash\ndaemon:x:1:1:daemon:/usr/sbin:/usr/sbin/nologin")
		v, ok := o.Classify(resp(200, "<p>profile</p>"), test, p)
		if !ok {
			t.Fatal("expected a verdict")
		}
		if v.Rule != "file-content" || v.Confidence != Confirmed {
			t.Errorf("got %s/%s", v.Confidence, v.Rule)
		}
	})

	t.Run("path disclosure likely", func(t *testing.T) {
		test := resp(500, "open failed at /var/www/html/uploads/file.php")
		v, ok := o.Classify(resp(200, "<p>profile</p>"), test, p)
		if !ok {
			t.Fatal("expected a verdict")
		}
		if v.Rule != "path-disclosure" || v.Confidence != Likely {
			t.Errorf("got %s/%s", v.Confidence, v.Rule)
		}
		if v.Class != payload.ClassTraversal {
			t.Errorf("class = %s, want traversal", v.Class)
		}
	})
}

func TestTemplateEvaluation(t *testing.T) {
	o := testOracle()
	p := payload.Payload{Class: payload.ClassSSTI, Value: "{{7*7}}"}

	t.Run("evaluated", func(t *testing.T) {
		v, ok := o.Classify(resp(200, "<p>hello guest</p>"), resp(200, "<p>hello 49</p>"), p)
		if !ok {
			t.Fatal("expected a verdict")
		}
		if v.Rule != "template-eval" || v.Confidence != Confirmed {
			t.Errorf("got %s/%s", v.Confidence, v.Rule)
		}
	})

	t.Run("echoed raw is not evaluation", func(t *testing.T) {
		v, ok := o.Classify(resp(200, "<p>hello guest</p>"), resp(200, "<p>hello {{7*7}} 49</p>"), p)
		if ok && v.Rule == "template-eval" {
			t.Errorf("template-eval fired on echoed marker: %+v", v)
		}
	})

	t.Run("engine error likely", func(t *testing.T) {
		test := resp(500, "jinja2.exceptions.TemplateSyntaxError: unexpected char")
		v, ok := o.Classify(resp(200, "<p>hello guest</p>"), test, p)
		if !ok {
			t.Fatal("expected a verdict")
		}
		if v.Rule != "template-error" || v.Confidence != Likely {
			t.Errorf("got %s/%s", v.Confidence, v.Rule)
		}
	})
}

func TestSecondaryServerError(t *testing.T) {
	o := testOracle()
	p := payload.Payload{Class: payload.ClassXSS, Value: "plain value"}
	baseline := resp(200, "<p>ok</p>")
	test := resp(500, "<h1>Internal Server Error</h1>")

	v, ok := o.Classify(baseline, test, p)
	if !ok {
		t.Fatal("expected a verdict")
	}
	if v.Class != ClassServerError || v.Confidence != Likely {
		t.Errorf("got class %s confidence %s", v.Class, v.Confidence)
	}
}

func TestSecondaryDebugInfo(t *testing.T) {
	o := testOracle()
	p := payload.Payload{Class: payload.ClassSSRF, Value: "http://10.0.0.1/"}
	baseline := resp(200, "<p>fetched</p>")
	test := resp(200, "Traceback (most recent call last):\n  File \"app.py\", line 4")

	v, ok := o.Classify(baseline, test, p)
	if !ok {
		t.Fatal("expected a verdict")
	}
	if v.Class != ClassDebugInfo || v.Confidence != Informational {
		t.Errorf("got class %s confidence %s", v.Class, v.Confidence)
	}
}

func TestMissingResponses(t *testing.T) {
	o := testOracle()
	p := payload.Payload{Class: payload.ClassXSS, Value: "<script>x</script>"}
	if _, ok := o.Classify(nil, resp(200, "x"), p); ok {
		t.Error("verdict from nil baseline")
	}
	if _, ok := o.Classify(resp(200, "x"), nil, p); ok {
		t.Error("verdict from nil test response")
	}
}

func TestSnippetWindows(t *testing.T) {
	body := strings.Repeat("a", 100) + "MATCH" + strings.Repeat("b", 100)
	got := snippet(body, 100, 105)
	if !strings.HasPrefix(got, "...") || !strings.HasSuffix(got, "...") {
		t.Errorf("snippet %q not elided", got)
	}
	if !strings.Contains(got, "MATCH") {
		t.Errorf("snippet %q lost the match", got)
	}
	if len(got) > 5+2*20+6 {
		t.Errorf("snippet too long: %d bytes", len(got))
	}

	if got := snippet("MATCH tail", 0, 5); strings.HasPrefix(got, "...") {
		t.Errorf("snippet %q elided at body start", got)
	}
}
