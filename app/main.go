package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	flags "github.com/jessevdk/go-flags"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/wamod/wa-guard/app/guard"
	"github.com/wamod/wa-guard/app/webapi"
	"github.com/wamod/wa-guard/lib/antispam"
	"github.com/wamod/wa-guard/lib/content"
	"github.com/wamod/wa-guard/lib/linkscan"
)

type options struct {
	Server struct {
		ListenAddr string `long:"listen" env:"LISTEN" default:":8080" description:"listen address"`
		AuthPasswd string `long:"auth" env:"AUTH" description:"basic auth password for user wa-guard, disabled if empty"`
	} `group:"server" namespace:"server" env-namespace:"SERVER"`

	Spam struct {
		MaxPerMinute  int           `long:"max-per-minute" env:"MAX_PER_MINUTE" default:"20" description:"max messages per minute per subject"`
		MaxDuplicates int           `long:"max-duplicates" env:"MAX_DUPLICATES" default:"3" description:"max duplicate messages before flagging"`
		MinDelay      time.Duration `long:"min-delay" env:"MIN_DELAY" default:"500ms" description:"min delay between messages"`
		MaxSubjects   int           `long:"max-subjects" env:"MAX_SUBJECTS" default:"10000" description:"max tracked subjects"`
		Whitelist     []string      `long:"whitelist" env:"WHITELIST" env-delim:"," description:"subjects never flagged"`
		CommonSpam    bool          `long:"common-patterns" env:"COMMON_PATTERNS" description:"enable builtin common spam patterns"`
	} `group:"spam" namespace:"spam" env-namespace:"SPAM"`

	Filter struct {
		BlockLinks  bool     `long:"block-links" env:"BLOCK_LINKS" description:"block messages with links"`
		BlockPhones bool     `long:"block-phones" env:"BLOCK_PHONES" description:"block messages with phone numbers"`
		BlockEmails bool     `long:"block-emails" env:"BLOCK_EMAILS" description:"block messages with email addresses"`
		Domains     []string `long:"blocked-domain" env:"BLOCKED_DOMAINS" env-delim:"," description:"blocked link domains"`
		MaxLength   int      `long:"max-length" env:"MAX_LENGTH" description:"max message length, 0 disables"`
	} `group:"filter" namespace:"filter" env-namespace:"FILTER"`

	Scan struct {
		Enabled      bool          `long:"enabled" env:"ENABLED" description:"scan links in checked messages"`
		NoFollow     bool          `long:"no-follow" env:"NO_FOLLOW" description:"do not resolve URL shorteners"`
		NoPhishing   bool          `long:"no-phishing" env:"NO_PHISHING" description:"skip phishing heuristics"`
		MaxRedirects int           `long:"max-redirects" env:"MAX_REDIRECTS" default:"5" description:"max redirect hops"`
		Timeout      time.Duration `long:"timeout" env:"TIMEOUT" default:"5s" description:"per-hop timeout"`
		SafeDomains  []string      `long:"safe-domain" env:"SAFE_DOMAINS" env-delim:"," description:"extra trusted domains"`
	} `group:"scan" namespace:"scan" env-namespace:"SCAN"`

	Files struct {
		Rules            string `long:"rules" env:"RULES" description:"yaml rules file"`
		Patterns         string `long:"patterns" env:"PATTERNS" description:"spam patterns file, one regex per line"`
		Keywords         string `long:"keywords" env:"KEYWORDS" description:"sensitive keywords file, one per line"`
		MaliciousDomains string `long:"malicious-domains" env:"MALICIOUS_DOMAINS" description:"malicious domains file, one per line"`
		SafeDomains      string `long:"safe-domains" env:"SAFE_DOMAINS" description:"extra trusted domains file, one per line"`
		LuaPlugins       string `long:"lua-plugins" env:"LUA_PLUGINS" description:"directory with lua rule scripts"`
		Watch            bool   `long:"watch" env:"WATCH" description:"reload on file changes"`
	} `group:"files" namespace:"files" env-namespace:"FILES"`

	Logger struct {
		Enabled    bool   `long:"enabled" env:"ENABLED" description:"enable rotated detection log"`
		FileName   string `long:"file" env:"FILE" default:"wa-guard.log" description:"location of detection log"`
		MaxSize    string `long:"max-size" env:"MAX_SIZE" default:"100M" description:"maximum size before it gets rotated"`
		MaxBackups int    `long:"max-backups" env:"MAX_BACKUPS" default:"10" description:"maximum number of old log files to retain"`
	} `group:"logger" namespace:"logger" env-namespace:"LOGGER"`

	Dbg bool `long:"dbg" env:"DEBUG" description:"debug mode"`
}

var revision = "local"

func main() {
	fmt.Printf("wa-guard %s\n", revision)
	var opts options
	p := flags.NewParser(&opts, flags.PrintErrors|flags.PassDoubleDash|flags.HelpFlag)
	if _, err := p.Parse(); err != nil {
		var flagsErr *flags.Error
		if !errors.As(err, &flagsErr) || flagsErr.Type != flags.ErrHelp {
			log.Printf("[ERROR] cli error: %v", err)
		}
		os.Exit(2)
	}

	setupLog(opts.Dbg, opts.Server.AuthPasswd)
	log.Printf("[DEBUG] options: %+v", opts)

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		// catch signal and invoke graceful termination
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		log.Printf("[WARN] interrupt signal")
		cancel()
	}()

	if err := execute(ctx, opts); err != nil {
		log.Printf("[ERROR] %v", err)
		os.Exit(1)
	}
}

func execute(ctx context.Context, opts options) error {
	logWr, err := makeDetectionLogWriter(opts)
	if err != nil {
		return fmt.Errorf("can't make detection log writer, %w", err)
	}
	defer logWr.Close()

	g, err := guard.New(makeGuardParams(opts, logWr))
	if err != nil {
		return fmt.Errorf("can't make guard service, %w", err)
	}
	defer g.Close()

	if opts.Files.Watch {
		go g.Watch(ctx)
	}

	srv := webapi.NewServer(webapi.Config{
		Version:    revision,
		ListenAddr: opts.Server.ListenAddr,
		Guard:      g,
		AuthPasswd: opts.Server.AuthPasswd,
		Dbg:        opts.Dbg,
	})
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("webapi server failed, %w", err)
	}
	return nil
}

func makeGuardParams(opts options, logWr io.Writer) guard.Params {
	params := guard.Params{
		Spam: antispam.Params{
			MaxMessagesPerMinute: opts.Spam.MaxPerMinute,
			MaxDuplicates:        opts.Spam.MaxDuplicates,
			MinMessageDelay:      opts.Spam.MinDelay,
			MaxTrackedSubjects:   opts.Spam.MaxSubjects,
			Whitelist:            opts.Spam.Whitelist,
		},
		Filter: content.FilterParams{
			BlockLinks:        opts.Filter.BlockLinks,
			BlockPhoneNumbers: opts.Filter.BlockPhones,
			BlockEmails:       opts.Filter.BlockEmails,
			BlockedDomains:    opts.Filter.Domains,
			MaxMessageLength:  opts.Filter.MaxLength,
		},
		Scan: linkscan.Params{
			NoFollowRedirects:   opts.Scan.NoFollow,
			NoPhishingDetection: opts.Scan.NoPhishing,
			MaxRedirects:        opts.Scan.MaxRedirects,
			Timeout:             opts.Scan.Timeout,
			SafeDomains:         opts.Scan.SafeDomains,
		},
		RulesFile:            opts.Files.Rules,
		PatternsFile:         opts.Files.Patterns,
		KeywordsFile:         opts.Files.Keywords,
		MaliciousDomainsFile: opts.Files.MaliciousDomains,
		SafeDomainsFile:      opts.Files.SafeDomains,
		LuaPluginsDir:        opts.Files.LuaPlugins,
		ScanLinks:            opts.Scan.Enabled,
		LogWriter:            logWr,
	}
	if opts.Spam.CommonSpam {
		params.Spam.SpamPatterns = antispam.CommonSpamPatterns
	}
	return params
}

type nopWriteCloser struct{ io.Writer }

func (n nopWriteCloser) Close() error { return nil }

// makeDetectionLogWriter creates the detection log writer with rotation.
func makeDetectionLogWriter(opts options) (io.WriteCloser, error) {
	if !opts.Logger.Enabled {
		return nopWriteCloser{io.Discard}, nil
	}

	sizeParse := func(inp string) (uint64, error) {
		if inp == "" {
			return 0, errors.New("empty value")
		}
		for i, sfx := range []string{"k", "m", "g", "t"} {
			if strings.HasSuffix(inp, strings.ToUpper(sfx)) || strings.HasSuffix(inp, strings.ToLower(sfx)) {
				val, err := strconv.Atoi(inp[:len(inp)-1])
				if err != nil {
					return 0, fmt.Errorf("can't parse %s: %w", inp, err)
				}
				return uint64(float64(val) * math.Pow(float64(1024), float64(i+1))), nil
			}
		}
		return strconv.ParseUint(inp, 10, 64)
	}

	maxSize, perr := sizeParse(opts.Logger.MaxSize)
	if perr != nil {
		return nil, fmt.Errorf("can't parse logger MaxSize: %w", perr)
	}
	maxSize /= 1048576

	log.Printf("[INFO] detection log enabled for %s, max size %dM", opts.Logger.FileName, maxSize)
	return &lumberjack.Logger{
		Filename:   opts.Logger.FileName,
		MaxSize:    int(maxSize), // in MB
		MaxBackups: opts.Logger.MaxBackups,
		Compress:   true,
		LocalTime:  true,
	}, nil
}

func setupLog(dbg bool, secrets ...string) {
	logOpts := []lgr.Option{lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.CallerFile, lgr.CallerFunc, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	}

	colorizer := lgr.Mapper{
		ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
		WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
		InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
		DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
		CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
		TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
	}
	logOpts = append(logOpts, lgr.Map(colorizer))

	secrets = func(ss []string) (res []string) {
		for _, s := range ss {
			if s != "" {
				res = append(res, s)
			}
		}
		return res
	}(secrets)
	if len(secrets) > 0 {
		logOpts = append(logOpts, lgr.Secret(secrets...))
	}
	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
