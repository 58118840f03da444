// Command demo walks through the completion lifecycle in-process: it stores
// a vendor key, opens a thread, runs one synchronous and one streamed
// completion, then prints the resulting thread.
//
// Start cmd/mock-backend first, or point -base-url at a real vendor and
// pass a real key.
//
// Usage:
//
//	demo [-provider anthropic|openai] [-base-url http://localhost:9090] [-key sk-...]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/rhuss/byok/pkg/api"
	"github.com/rhuss/byok/pkg/credentials"
	"github.com/rhuss/byok/pkg/debug"
	"github.com/rhuss/byok/pkg/engine"
	"github.com/rhuss/byok/pkg/provider/anthropic"
	"github.com/rhuss/byok/pkg/provider/factory"
	"github.com/rhuss/byok/pkg/provider/openai"
	"github.com/rhuss/byok/pkg/storage"
	"github.com/rhuss/byok/pkg/storage/memory"
)

const demoUser = "demo-user"

func main() {
	providerFlag := flag.String("provider", "anthropic", "vendor to call (anthropic or openai)")
	baseURL := flag.String("base-url", "http://localhost:9090", "vendor base URL")
	key := flag.String("key", "sk-demo-key-0000", "vendor API key")
	flag.Parse()

	debug.Init(debug.Options{Level: "warn"})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, api.ProviderID(*providerFlag), *baseURL, *key); err != nil {
		fmt.Fprintf(os.Stderr, "demo failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, p api.ProviderID, baseURL, key string) error {
	fmt.Println("=== byok completion demo ===")
	fmt.Println()

	// 1. Collaborators
	store := memory.New(100)
	cipher, err := credentials.NewCipher("demo-master-key", "demo-salt")
	if err != nil {
		return err
	}
	creds := credentials.NewManager(store, cipher)

	acfg := anthropic.DefaultConfig("")
	acfg.BaseURL = baseURL
	ocfg := openai.DefaultConfig("")
	ocfg.BaseURL = baseURL
	f := factory.NewDefault(acfg, ocfg)

	eng, err := engine.New(f, creds, store, engine.DefaultConfig())
	if err != nil {
		return err
	}
	fmt.Printf("[1] Engine ready, providers: %v\n", f.SupportedProviders())

	// 2. A completion without a stored key fails before any vendor call
	ownerCtx := storage.SetOwner(ctx, demoUser)
	thread, err := store.CreateThread(ownerCtx, storage.NewThread{OwnerID: demoUser, Title: "demo"})
	if err != nil {
		return err
	}
	_, err = eng.CompleteChatPrompt(ctx, demoUser, &api.CompletionRequest{
		Prompt: "Hello", Provider: p, ThreadID: thread.ID,
	})
	fmt.Printf("\n[2] Without a key: %v\n", err)

	// 3. Store the key, validating it against the vendor
	if err := creds.SetAPIKey(ctx, demoUser, p, key, f); err != nil {
		return fmt.Errorf("storing key: %w", err)
	}
	fmt.Printf("\n[3] Stored %s key ending in %q\n", p, credentials.Hint(key))

	// 4. Synchronous completion
	callCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	summary, err := eng.CompleteChatPrompt(callCtx, demoUser, &api.CompletionRequest{
		Prompt: "What is the capital of France?", Provider: p, ThreadID: thread.ID,
	})
	if err != nil {
		return fmt.Errorf("completion: %w", err)
	}
	fmt.Printf("\n[4] Completion (%s, finish=%s):\n    %s\n", summary.Model, summary.FinishReason, summary.Content)

	// 5. Streamed completion, with the previous turns as context
	fmt.Print("\n[5] Streaming: ")
	err = eng.StreamChatCompletion(callCtx, demoUser, &api.CompletionRequest{
		Prompt: "And of Italy?", Provider: p, ThreadID: thread.ID,
	}, func(c api.StreamChunk) error {
		fmt.Print(c.Content)
		if c.Done {
			fmt.Printf("\n    finish=%s usage=%+v\n", c.FinishReason, c.Usage)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("stream: %w", err)
	}

	// 6. The persisted thread
	stored, err := store.GetThread(ownerCtx, thread.ID)
	if err != nil {
		return err
	}
	fmt.Println("\n[6] Thread:")
	for _, m := range stored.Messages {
		fmt.Printf("    %-9s %-8s %q\n", m.Role, m.Status, m.Content)
	}
	data, _ := json.MarshalIndent(stored.Messages[len(stored.Messages)-1].Metadata, "    ", "  ")
	fmt.Printf("    last metadata: %s\n", data)

	fmt.Println("\n=== demo complete ===")
	return nil
}
