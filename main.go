package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/logging"
	"github.com/deemkeen/anancus/audit"
	"github.com/deemkeen/anancus/db"
	"github.com/deemkeen/anancus/federation"
	"github.com/deemkeen/anancus/middleware"
	"github.com/deemkeen/anancus/ratelimit"
	"github.com/deemkeen/anancus/util"
	"github.com/deemkeen/anancus/web"
)

func main() {

	conf, err := util.ReadConf()
	if err != nil {
		log.Fatalln(err)
	}

	fmt.Println("Configuration: ")
	fmt.Println(util.PrettyPrint(conf))

	database := db.GetDB()

	identity, err := federation.LoadOrCreateIdentity(conf)
	if err != nil {
		log.Fatalln(err)
	}
	log.Printf("Node actor: %s", identity.ActorURI())

	limiter := ratelimit.NewLimiter(database)
	chain := audit.NewChain(database)
	publisher := federation.NewPublisher(database, identity)

	deliveryWorker := federation.NewDeliveryWorker(database, conf, identity, limiter, chain)
	inboxWorker := federation.NewInboxWorker(database, conf, chain)
	federation.RegisterDefaultHandlers(inboxWorker, database, publisher, chain)

	deliveryWorker.Start()
	inboxWorker.Start()
	startJanitor(conf, deliveryWorker, inboxWorker, limiter)

	if _, err := chain.Append(audit.ActorSystem, identity.ActorName, "node_started", identity.ActorURI(), nil); err != nil {
		log.Printf("AuditChain: append failed, chain gap for node_started: %v", err)
	}

	s, err := wish.NewServer(
		wish.WithAddress(fmt.Sprintf("%s:%d", conf.Conf.Host, conf.Conf.SshPort)),
		wish.WithHostKeyPath(".ssh/hostkey"),
		wish.WithPublicKeyAuth(publicKeyHandler),
		wish.WithMiddleware(
			middleware.MainTui(conf, publisher),
			logging.Middleware(), // last middleware executed first
		),
	)
	if err != nil {
		log.Fatalln(err)
	}

	startServing(s, conf, web.Deps{
		Conf:     conf,
		DB:       database,
		Identity: identity,
		Limiter:  limiter,
		Chain:    chain,
		Keys:     federation.NewHTTPKeyResolver(),
	})
}

// startJanitor periodically reverts work stuck in processing and drops
// rate limit windows nobody will ever read again.
func startJanitor(conf *util.AppConfig, dw *federation.DeliveryWorker, iw *federation.InboxWorker, limiter *ratelimit.Limiter) {
	interval := time.Duration(conf.Conf.StaleMinutes) * time.Minute
	ticker := time.NewTicker(interval)
	go func() {
		for range ticker.C {
			dw.ResetStale()
			iw.ResetStale()
			if purged, err := limiter.Purge(conf.Conf.RateWindowSec, 2); err != nil {
				log.Printf("RateLimiter: Purge failed: %v", err)
			} else if purged > 0 {
				log.Printf("RateLimiter: Purged %d expired window entries", purged)
			}
		}
	}()
}

func startServing(s *ssh.Server, conf *util.AppConfig, deps web.Deps) {
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	log.Printf("Starting SSH server on %s:%d", conf.Conf.Host, conf.Conf.SshPort)
	go func() {
		if err := s.ListenAndServe(); err != nil {
			log.Fatalln(err)
		}
	}()

	go func() {
		if err := web.Router(deps); err != nil {
			log.Fatalln(err)
		}
	}()

	<-done
	log.Println("Stopping SSH server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer func() { cancel() }()
	if err := s.Shutdown(ctx); err != nil {
		log.Fatalln(err)
	}
}

// publicKeyHandler admits any key; reaching the SSH port at all is the
// authorization boundary for the operator console. The fingerprint goes
// to the log so console sessions can be attributed.
func publicKeyHandler(ctx ssh.Context, key ssh.PublicKey) bool {
	log.Printf("Console: session from %s, key %s", ctx.User(), util.PkToHash(util.PublicKeyToString(key)))
	return true
}
