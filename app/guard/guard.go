// Package guard wires the detection engines into a single message guard
// service: spam detection, content filtering and link scanning behind one
// check call, with file-based configuration and hot reload.
package guard

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	waProto "go.mau.fi/whatsmeow/binary/proto"

	"github.com/wamod/wa-guard/lib/antispam"
	"github.com/wamod/wa-guard/lib/antispam/lua"
	"github.com/wamod/wa-guard/lib/content"
	"github.com/wamod/wa-guard/lib/linkscan"
	"github.com/wamod/wa-guard/lib/wamsg"
)

// Params is a set of parameters for Guard.
type Params struct {
	Spam   antispam.Params
	Filter content.FilterParams
	Scan   linkscan.Params

	RulesFile            string // yaml rule definitions, optional
	PatternsFile         string // spam regexes, one per line, optional
	KeywordsFile         string // sensitive keywords, one per line, optional
	MaliciousDomainsFile string // known malicious domains, one per line, optional
	SafeDomainsFile      string // extra trusted domains, one per line, optional
	LuaPluginsDir        string // directory with custom lua rule scripts, optional

	ScanLinks bool      // scan links extracted from every checked message
	LogWriter io.Writer // detection log, json lines, optional
}

// Verdict is the combined outcome of one guarded check.
type Verdict struct {
	Subject   string               `json:"subject"`
	Blocked   bool                 `json:"blocked"`
	Reasons   []string             `json:"reasons"`
	Spam      antispam.Result      `json:"spam"`
	Content   content.FilterResult `json:"content"`
	Links     []linkscan.Result    `json:"links,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
}

// Guard runs every message through all the detection engines and merges the
// results into a single verdict.
type Guard struct {
	params  Params
	spam    *antispam.Detector
	filter  *content.Filter
	scanner *linkscan.Scanner
	lua     *lua.Checker

	fileDomains     []string // malicious domains loaded from file, replaced on reload
	fileSafeDomains []string // safe domains loaded from file, replaced on reload
	lock            sync.Mutex
}

// New creates a Guard with all engines configured and configuration files
// loaded. Missing optional files are not an error, they are skipped.
func New(params Params) (*Guard, error) {
	g := &Guard{
		params:  params,
		spam:    antispam.NewDetector(params.Spam),
		filter:  content.NewFilter(params.Filter),
		scanner: linkscan.NewScanner(params.Scan),
	}

	if params.LuaPluginsDir != "" {
		g.lua = lua.NewChecker()
		if err := g.lua.LoadDirectory(params.LuaPluginsDir); err != nil {
			return nil, err
		}
		log.Printf("[INFO] loaded lua plugins from %s: %v", params.LuaPluginsDir, g.lua.Names())
	}

	if err := g.Reload(); err != nil {
		return nil, err
	}
	return g, nil
}

// CheckMessage runs a message through all engines and returns the merged
// verdict. Link scanning may hit the network, the context bounds it.
func (g *Guard) CheckMessage(ctx context.Context, subject string, msg *waProto.Message) Verdict {
	res := Verdict{Subject: subject, Reasons: []string{}, Timestamp: time.Now()}

	res.Spam = g.spam.Check(subject, msg)
	if res.Spam.IsSpam {
		res.Blocked = true
		res.Reasons = append(res.Reasons, "spam: "+res.Spam.Reason)
	}

	res.Content = g.filter.Check(msg)
	if !res.Content.Allowed {
		res.Blocked = true
		res.Reasons = append(res.Reasons, "content: "+res.Content.BlockedReason)
	}

	if g.params.ScanLinks {
		links := wamsg.Links(wamsg.Text(msg))
		if len(links) > 0 {
			urls := make([]string, len(links))
			for i, l := range links {
				urls[i] = l.URL
			}
			res.Links = g.scanner.ScanMultiple(ctx, urls)
			for _, l := range res.Links {
				if !l.Safe {
					res.Blocked = true
					res.Reasons = append(res.Reasons, "link: "+l.URL+" ("+strings.Join(l.Threats, ", ")+")")
				}
			}
		}
	}

	if res.Blocked {
		g.logDetection(res)
	}
	return res
}

// Spam exposes the spam detector for management operations.
func (g *Guard) Spam() *antispam.Detector { return g.spam }

// Filter exposes the content filter for management operations.
func (g *Guard) Filter() *content.Filter { return g.filter }

// Scanner exposes the link scanner for management operations.
func (g *Guard) Scanner() *linkscan.Scanner { return g.scanner }

// Close releases the lua VM if plugins were loaded.
func (g *Guard) Close() {
	if g.lua != nil {
		g.lua.Close()
	}
}

// logDetection writes one json line per blocked message to the detection log.
func (g *Guard) logDetection(v Verdict) {
	log.Printf("[INFO] blocked message from %s: %s", v.Subject, strings.Join(v.Reasons, "; "))
	if g.params.LogWriter == nil {
		return
	}
	line, err := json.Marshal(v)
	if err != nil {
		log.Printf("[WARN] can't marshal detection record, %v", err)
		return
	}
	if _, err := g.params.LogWriter.Write(append(line, '\n')); err != nil {
		log.Printf("[WARN] can't write detection log, %v", err)
	}
}
