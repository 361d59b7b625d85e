// File: internal/browser/interceptor.go
package browser

import (
	"bytes"
	"context"
	"encoding/base64"
	"strings"

	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/quizwalk/internal/profile"
)

// Recorder receives intercepted submissions. capture.Recorder implements it.
type Recorder interface {
	Record(ctx context.Context, url string, body []byte) (bool, error)
}

// verdict is what the interceptor does with a paused request.
type verdict int

const (
	verdictContinue verdict = iota
	verdictCapture
	verdictPreflight
	verdictFail
)

// Interceptor pauses every request of a tab through the Fetch domain. Target
// submissions are recorded and answered with a mock so the real endpoint is
// never reached; images are failed to keep pages light.
type Interceptor struct {
	capture  profile.Capture
	blocked  []string
	recorder Recorder
	logger   *zap.Logger
}

// NewInterceptor builds an interceptor for the profile's capture settings.
func NewInterceptor(p *profile.Profile, recorder Recorder, logger *zap.Logger) *Interceptor {
	return &Interceptor{
		capture:  p.Capture,
		blocked:  append([]string(nil), p.BlockedURLs...),
		recorder: recorder,
		logger:   logger.Named("interceptor"),
	}
}

// Attach installs the listener and enables interception on the tab behind tabCtx.
// It must run before the first navigation.
func (i *Interceptor) Attach(tabCtx context.Context) error {
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		paused, ok := ev.(*fetch.EventRequestPaused)
		if !ok {
			return
		}
		// Handlers must not block the event loop.
		go i.handle(tabCtx, paused)
	})

	actions := []chromedp.Action{network.Enable()}
	if len(i.blocked) > 0 {
		actions = append(actions, network.SetBlockedURLs(i.blocked))
	}
	actions = append(actions, fetch.Enable().WithPatterns([]*fetch.RequestPattern{{URLPattern: "*"}}))
	return chromedp.Run(tabCtx, actions...)
}

func (i *Interceptor) handle(tabCtx context.Context, ev *fetch.EventRequestPaused) {
	if ev.Request == nil {
		return
	}
	var action chromedp.Action
	switch classify(ev.Request, ev.ResourceType, i.capture.Pattern) {
	case verdictCapture:
		body := postBody(ev.Request)
		recorded, err := i.recorder.Record(tabCtx, ev.Request.URL, body)
		if err != nil {
			i.logger.Error("Failed to store intercepted submission.", zap.String("url", ev.Request.URL), zap.Error(err))
		}
		i.logger.Debug("Intercepted submission.", zap.Bool("recorded", recorded), zap.Int("bytes", len(body)))
		action = mockResponse(ev.RequestID, i.capture)
	case verdictPreflight:
		action = preflightResponse(ev.RequestID, ev.Request)
	case verdictFail:
		action = fetch.FailRequest(ev.RequestID, network.ErrorReasonBlockedByClient)
	default:
		action = fetch.ContinueRequest(ev.RequestID)
	}
	if err := chromedp.Run(tabCtx, action); err != nil && tabCtx.Err() == nil {
		i.logger.Debug("Failed to resolve paused request.", zap.String("url", ev.Request.URL), zap.Error(err))
	}
}

// classify decides the fate of a paused request. Only POSTs whose URL contains
// the capture pattern count as submissions; CORS preflights to the same URL
// are answered locally too.
func classify(req *network.Request, resourceType network.ResourceType, pattern string) verdict {
	if pattern != "" && strings.Contains(req.URL, pattern) {
		switch {
		case strings.EqualFold(req.Method, "POST"):
			return verdictCapture
		case strings.EqualFold(req.Method, "OPTIONS"):
			return verdictPreflight
		}
	}
	if resourceType == network.ResourceTypeImage {
		return verdictFail
	}
	return verdictContinue
}

// postBody reassembles a request body from its base64 post data entries.
func postBody(req *network.Request) []byte {
	if !req.HasPostData || len(req.PostDataEntries) == 0 {
		return nil
	}
	var body bytes.Buffer
	for _, entry := range req.PostDataEntries {
		if entry == nil {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(entry.Bytes)
		if err != nil {
			body.WriteString(entry.Bytes)
			continue
		}
		body.Write(decoded)
	}
	return body.Bytes()
}

// mockResponse answers a captured submission without contacting the server.
func mockResponse(id fetch.RequestID, c profile.Capture) *fetch.FulfillRequestParams {
	return fetch.FulfillRequest(id, int64(c.MockStatus)).
		WithResponseHeaders([]*fetch.HeaderEntry{
			{Name: "Content-Type", Value: "application/json"},
			{Name: "Access-Control-Allow-Origin", Value: "*"},
		}).
		WithBody(base64.StdEncoding.EncodeToString([]byte(c.MockBody)))
}

// preflightResponse allows the submission that follows a CORS preflight.
func preflightResponse(id fetch.RequestID, req *network.Request) *fetch.FulfillRequestParams {
	allowHeaders := "*"
	for name, v := range req.Headers {
		if strings.EqualFold(name, "Access-Control-Request-Headers") {
			if h, ok := v.(string); ok && h != "" {
				allowHeaders = h
			}
		}
	}
	return fetch.FulfillRequest(id, 204).
		WithResponseHeaders([]*fetch.HeaderEntry{
			{Name: "Access-Control-Allow-Origin", Value: "*"},
			{Name: "Access-Control-Allow-Methods", Value: "POST, OPTIONS"},
			{Name: "Access-Control-Allow-Headers", Value: allowHeaders},
			{Name: "Access-Control-Max-Age", Value: "600"},
		})
}
