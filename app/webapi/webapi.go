// Package webapi provides a web API for the message guard service.
package webapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/didip/tollbooth/v8"
	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/routegroup"
	waProto "go.mau.fi/whatsmeow/binary/proto"
	"google.golang.org/protobuf/proto"

	"github.com/wamod/wa-guard/app/guard"
	"github.com/wamod/wa-guard/lib/antispam"
	"github.com/wamod/wa-guard/lib/content"
	"github.com/wamod/wa-guard/lib/linkscan"
)

// Guard is the service interface the server exposes over HTTP.
type Guard interface {
	CheckMessage(ctx context.Context, subject string, msg *waProto.Message) guard.Verdict
	Spam() *antispam.Detector
	Filter() *content.Filter
	Scanner() *linkscan.Scanner
	Reload() error
}

// Config defines server parameters.
type Config struct {
	Version    string // version to show in /ping
	ListenAddr string // listen address
	Guard      Guard  // the guard service
	AuthPasswd string // basic auth password for user "wa-guard", empty disables auth
	Dbg        bool   // debug mode
}

// Server is a web API server.
type Server struct {
	Config
}

// NewServer creates a new web API server.
func NewServer(config Config) *Server {
	return &Server{Config: config}
}

// Run starts the server and blocks until the context is canceled.
func (s *Server) Run(ctx context.Context) error {
	router := routegroup.New(http.NewServeMux())
	router.Use(rest.Recoverer(lgr.Default()))
	router.Use(rest.AppInfo("wa-guard", "wamod", s.Version), rest.Ping)
	router.Use(tollbooth.HTTPMiddleware(tollbooth.NewLimiter(50, nil)))
	router.Use(rest.SizeLimit(1024 * 1024)) // 1M max request size

	if s.AuthPasswd != "" {
		log.Printf("[INFO] basic auth enabled for webapi server")
		router.Use(rest.BasicAuthWithPrompt("wa-guard", s.AuthPasswd))
	} else {
		log.Printf("[WARN] basic auth disabled, access to webapi is not protected")
	}

	s.routes(router)

	srv := &http.Server{Addr: s.ListenAddr, Handler: router, ReadTimeout: 5 * time.Second, WriteTimeout: 30 * time.Second}
	go func() {
		<-ctx.Done()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("[WARN] failed to shutdown webapi server: %v", err)
		} else {
			log.Printf("[INFO] webapi server stopped")
		}
	}()

	log.Printf("[INFO] start webapi server on %s", s.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to run server: %w", err)
	}
	return nil
}

func (s *Server) routes(router *routegroup.Bundle) {
	router.HandleFunc("POST /check", s.checkHandler)
	router.HandleFunc("POST /analyze", s.analyzeHandler)
	router.HandleFunc("POST /filter", s.filterHandler)

	router.HandleFunc("POST /scan", s.scanHandler)
	router.HandleFunc("POST /scan/batch", s.scanBatchHandler)
	router.HandleFunc("GET /quickcheck", s.quickCheckHandler)

	users := router.Mount("/users")
	users.HandleFunc("POST /mute", s.subjectHandler(s.muteSubject))
	users.HandleFunc("POST /unmute", s.subjectHandler(func(req subjectRequest) { s.Guard.Spam().Unmute(req.Subject) }))
	users.HandleFunc("POST /ban", s.subjectHandler(func(req subjectRequest) { s.Guard.Spam().Ban(req.Subject) }))
	users.HandleFunc("POST /unban", s.subjectHandler(func(req subjectRequest) { s.Guard.Spam().Unban(req.Subject) }))
	users.HandleFunc("POST /reset", s.subjectHandler(func(req subjectRequest) { s.Guard.Spam().ResetActivity(req.Subject) }))
	users.HandleFunc("POST /whitelist", s.subjectHandler(func(req subjectRequest) { s.Guard.Spam().AddToWhitelist(req.Subject) }))
	users.HandleFunc("GET /activity", s.activityHandler)

	router.HandleFunc("GET /stats", s.statsHandler)
	router.HandleFunc("PUT /reload", s.reloadHandler)
}

// checkRequest is the message payload of check, analyze and filter calls.
// Either text or a full message proto can be provided.
type checkRequest struct {
	Subject string          `json:"subject"`
	Text    string          `json:"text,omitempty"`
	Message json.RawMessage `json:"message,omitempty"`
}

// message builds the waProto message from the request, text is wrapped into a
// plain conversation message.
func (r *checkRequest) message() (*waProto.Message, error) {
	if len(r.Message) > 0 {
		msg := &waProto.Message{}
		if err := json.Unmarshal(r.Message, msg); err != nil {
			return nil, fmt.Errorf("can't decode message: %w", err)
		}
		return msg, nil
	}
	return &waProto.Message{Conversation: proto.String(r.Text)}, nil
}

// checkHandler handles POST /check, the full guard verdict for one message.
func (s *Server) checkHandler(w http.ResponseWriter, r *http.Request) {
	req, msg, ok := s.decodeCheck(w, r)
	if !ok {
		return
	}
	verdict := s.Guard.CheckMessage(r.Context(), req.Subject, msg)
	rest.RenderJSON(w, verdict)
}

// analyzeHandler handles POST /analyze, content signal extraction only.
func (s *Server) analyzeHandler(w http.ResponseWriter, r *http.Request) {
	_, msg, ok := s.decodeCheck(w, r)
	if !ok {
		return
	}
	rest.RenderJSON(w, s.Guard.Filter().Analyze(msg))
}

// filterHandler handles POST /filter, the content block policy only.
func (s *Server) filterHandler(w http.ResponseWriter, r *http.Request) {
	_, msg, ok := s.decodeCheck(w, r)
	if !ok {
		return
	}
	rest.RenderJSON(w, s.Guard.Filter().Check(msg))
}

func (s *Server) decodeCheck(w http.ResponseWriter, r *http.Request) (checkRequest, *waProto.Message, bool) {
	req := checkRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		rest.RenderJSON(w, rest.JSON{"error": "can't decode request", "details": err.Error()})
		return req, nil, false
	}
	msg, err := req.message()
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		rest.RenderJSON(w, rest.JSON{"error": "can't decode message", "details": err.Error()})
		return req, nil, false
	}
	return req, msg, true
}

// scanHandler handles POST /scan, a single URL scan.
func (s *Server) scanHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		rest.RenderJSON(w, rest.JSON{"error": "can't decode request", "details": err.Error()})
		return
	}
	rest.RenderJSON(w, s.Guard.Scanner().Scan(r.Context(), req.URL))
}

// scanBatchHandler handles POST /scan/batch, concurrent scan of multiple URLs.
func (s *Server) scanBatchHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URLs []string `json:"urls"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		rest.RenderJSON(w, rest.JSON{"error": "can't decode request", "details": err.Error()})
		return
	}
	rest.RenderJSON(w, rest.JSON{"results": s.Guard.Scanner().ScanMultiple(r.Context(), req.URLs)})
}

// quickCheckHandler handles GET /quickcheck?url=..., static checks only.
func (s *Server) quickCheckHandler(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		w.WriteHeader(http.StatusBadRequest)
		rest.RenderJSON(w, rest.JSON{"error": "url parameter required"})
		return
	}
	suspicious, reasons := s.Guard.Scanner().QuickCheck(url)
	rest.RenderJSON(w, rest.JSON{"url": url, "suspicious": suspicious, "reasons": reasons})
}

// subjectRequest is the payload of the subject management calls.
type subjectRequest struct {
	Subject  string `json:"subject"`
	Duration string `json:"duration,omitempty"` // mute duration, default 1h
}

// subjectHandler wraps a subject management operation into a handler.
func (s *Server) subjectHandler(op func(req subjectRequest)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := subjectRequest{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			rest.RenderJSON(w, rest.JSON{"error": "can't decode request", "details": err.Error()})
			return
		}
		if req.Subject == "" {
			w.WriteHeader(http.StatusBadRequest)
			rest.RenderJSON(w, rest.JSON{"error": "subject required"})
			return
		}
		op(req)
		rest.RenderJSON(w, rest.JSON{"updated": true, "subject": req.Subject})
	}
}

// muteSubject parses the duration and mutes the subject, 1h if not given.
func (s *Server) muteSubject(req subjectRequest) {
	duration := time.Hour
	if req.Duration != "" {
		if d, err := time.ParseDuration(req.Duration); err == nil {
			duration = d
		} else {
			log.Printf("[WARN] can't parse mute duration %q, using default: %v", req.Duration, err)
		}
	}
	s.Guard.Spam().Mute(req.Subject, duration)
}

// activityHandler handles GET /users/activity?subject=..., tracked state of a
// subject.
func (s *Server) activityHandler(w http.ResponseWriter, r *http.Request) {
	subject := r.URL.Query().Get("subject")
	if subject == "" {
		w.WriteHeader(http.StatusBadRequest)
		rest.RenderJSON(w, rest.JSON{"error": "subject parameter required"})
		return
	}
	act, ok := s.Guard.Spam().Activity(subject)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		rest.RenderJSON(w, rest.JSON{"error": "subject not found"})
		return
	}
	rest.RenderJSON(w, act)
}

// statsHandler handles GET /stats, detector aggregate counters.
func (s *Server) statsHandler(w http.ResponseWriter, _ *http.Request) {
	rest.RenderJSON(w, s.Guard.Spam().Stats())
}

// reloadHandler handles PUT /reload, re-reads all configuration files.
func (s *Server) reloadHandler(w http.ResponseWriter, _ *http.Request) {
	if err := s.Guard.Reload(); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		rest.RenderJSON(w, rest.JSON{"error": "can't reload", "details": err.Error()})
		return
	}
	rest.RenderJSON(w, rest.JSON{"reloaded": true})
}
