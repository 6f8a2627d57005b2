package main

import (
	"crypto/tls"
	"expvar"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
	"golang.org/x/crypto/acme/autocert"
)

var (
	// Tag is set by the CI build process
	Tag string
	// Build is set by the CI build process
	Build string

	// WebhookBearerToken is the bearer token passed to the webhook, and expected by admin routes
	WebhookBearerToken string
	// SecretKey is used to check JWT tokens signatures
	SecretKey string
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  2048,
	WriteBufferSize: 4096,
}

var log = logrus.New()

func newPersister(cfg *Config) (Persister, error) {
	switch cfg.Persister {
	case "bolt":
		return newBoltDBPersister(cfg.DBName)
	case "redis":
		return newRedisPersister(cfg.RedisAddr)
	case "postgres":
		return newPostgresPersister(cfg.PostgresDSN)
	case "null":
		return newNullPersister(), nil
	}
	return nil, fmt.Errorf("%q: %w", cfg.Persister, ErrUnknownPersister)
}

func main() {

	var goroutines = expvar.NewInt("num_goroutine")
	var interval = time.Duration(5) * time.Second
	go func() {
		for {
			<-time.After(interval)
			goroutines.Set(int64(runtime.NumGoroutine()))
		}
	}()

	log.Formatter = &prefixed.TextFormatter{
		DisableTimestamp: true,
		ForceFormatting:  true,
	}
	log.SetOutput(os.Stdout)

	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}

	level, ok := parseLogLevel(cfg.LogLevel)
	if !ok {
		log.Warn("Invalid log level ", cfg.LogLevel, ", using info")
	}
	log.SetLevel(level)

	if Build != "" {
		if Tag == "" {
			log.Infof("QuadServer - build %s", Build)
		} else {
			log.Infof("QuadServer %s - build %s", Tag, Build)
		}
	} else {
		log.Infof("QuadServer development version")
	}

	if cfg.Bench > 0 {
		if err := runBenchmark(cfg, cfg.Bench); err != nil {
			log.Fatal(err)
		}
		return
	}

	SecretKey = cfg.Secret
	WebhookBearerToken = cfg.WebhookBearer

	var webhookwriter *WebhookWriter
	if cfg.WebhookURL != "" {
		webhookwriter = NewWebhookWriter(cfg.WebhookURL, cfg.WebhookHeaders, cfg.WebhookBearer)
		defer webhookwriter.Close()
	}

	if cfg.CPUProfile != "" {
		after2min := time.After(time.Minute * 2)

		log.Debug("Setting up CPU Prof")
		f, err := os.Create(cfg.CPUProfile)
		if err != nil {
			log.Fatal(err)
		}
		pprof.StartCPUProfile(f)
		go func() {
			<-after2min
			log.Debug("Starting CPU prof output")
			pprof.StopCPUProfile()
			log.Debug("Done CPU prof output")
		}()

	}
	if cfg.MemProfile != "" {
		after1min := time.After(time.Minute * 1)
		log.Debug("Setting up Mem Prof")

		f, err := os.Create(cfg.MemProfile)
		if err != nil {
			log.Fatal(err)
		}

		go func() {
			<-after1min
			log.Debug("Starting Mem prof output")
			pprof.WriteHeapProfile(f)
			log.Debug("Done Mem prof output")
			f.Close()
		}()
	}

	persister, err := newPersister(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer persister.close()

	idx, err := NewPointIndex(persister, cfg)
	if err != nil {
		log.Fatal(err)
	}
	log.Infof("%s tree on %v, capacity %d, %d points", cfg.Variant, cfg.Boundary, cfg.Capacity, idx.count())

	wshandler := NewWSRouter(idx, webhookwriter)

	http.Handle("/", newHandler(cfg, idx, persister, wshandler))

	if cfg.SSL {
		certManager := autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(cfg.SSLHost),
			Cache:      autocert.DirCache("certs"),
		}
		srv := &http.Server{
			Addr: ":https",
			TLSConfig: &tls.Config{
				GetCertificate: func(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
					if hello.ServerName == "" {
						hello.ServerName = cfg.SSLHost
					}
					return certManager.GetCertificate(hello)
				},
				MinVersion: tls.VersionTLS12,
			},
		}
		log.Info("TLS Server starting")

		s := &http.Server{
			Handler: certManager.HTTPHandler(nil),
			Addr:    ":80",
		}
		go s.ListenAndServe()
		log.Fatal(srv.ListenAndServeTLS("", ""))

		return
	}
	log.Info("Server starting at ", cfg.HostPort)

	srv := &http.Server{
		Addr: cfg.HostPort,
	}
	log.Fatal(srv.ListenAndServe())
}
