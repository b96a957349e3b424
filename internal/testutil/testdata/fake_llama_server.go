// fake_llama_server mimics the parts of llama-server that inferd relies on:
// the listening banner, /health and POST /completion. Behaviour is driven by
// environment variables:
//
//	FAKE_LLAMA_MODE      ready (default), slow, exit, fatal, ignore_term
//	FAKE_LLAMA_DELAY     delay before the banner in slow mode (default 1s)
//	FAKE_LLAMA_SPAWN_LOG file to append the pid to on every start
//	FAKE_LLAMA_CONTENT   body of the "content" field returned by /completion
//	FAKE_LLAMA_LATENCY   delay before answering /completion
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	var model, host string
	var port, ctxSize, ngl, parallel int
	flag.StringVar(&model, "m", "", "model path")
	flag.StringVar(&host, "host", "127.0.0.1", "host")
	flag.IntVar(&port, "port", 0, "port")
	flag.IntVar(&ctxSize, "ctx-size", 0, "context size")
	flag.IntVar(&ngl, "n-gpu-layers", 0, "gpu layers")
	flag.IntVar(&parallel, "parallel", 1, "slots")
	flag.Parse()

	if p := os.Getenv("FAKE_LLAMA_SPAWN_LOG"); p != "" {
		f, err := os.OpenFile(p, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
		}
	}

	mode := os.Getenv("FAKE_LLAMA_MODE")
	sigCh := make(chan os.Signal, 1)
	if mode == "ignore_term" {
		signal.Ignore(syscall.SIGTERM)
	} else {
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	}

	fmt.Fprintf(os.Stderr, "llama_model_loader: loaded meta data from %s\n", model)
	fmt.Fprintf(os.Stderr, "load_tensors: offloading %d layers to GPU\n", ngl)
	switch mode {
	case "exit":
		fmt.Fprintln(os.Stderr, "gguf_init: invalid magic characters")
		os.Exit(3)
	case "fatal":
		fmt.Fprintln(os.Stderr, "error: failed to load model")
		<-sigCh
		return
	case "slow":
		d, err := time.ParseDuration(os.Getenv("FAKE_LLAMA_DELAY"))
		if err != nil {
			d = time.Second
		}
		select {
		case <-time.After(d):
		case <-sigCh:
			return
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("/completion", func(w http.ResponseWriter, r *http.Request) {
		if d, err := time.ParseDuration(os.Getenv("FAKE_LLAMA_LATENCY")); err == nil {
			select {
			case <-time.After(d):
			case <-r.Context().Done():
				return
			}
		}
		content, ok := os.LookupEnv("FAKE_LLAMA_CONTENT")
		if !ok {
			content = `{"category":"idea","tags":["test"],"confidence":0.9}`
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"content": content, "stop": true})
	})

	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: couldn't bind HTTP server socket: %v\n", err)
		os.Exit(1)
	}
	srv := &http.Server{Handler: mux}
	go func() { _ = srv.Serve(ln) }()
	fmt.Fprintf(os.Stderr, "main: server is listening on http://%s - starting the main loop\n", ln.Addr())

	if mode == "ignore_term" {
		select {}
	}
	<-sigCh
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
