// cmd/heatmap renders the current market treemap to a JPEG and delivers
// it via Telegram. Intended to run from cron or by hand.
//
// Usage:
//
//	go run ./cmd/heatmap --mode=change --out=heatmap.jpg
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"giftpulse/config"
	"giftpulse/internal/model"
	"giftpulse/internal/notification"
	"giftpulse/internal/treemap"
	"giftpulse/internal/upstream"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	modeStr := flag.String("mode", "change", "Tile weighting: change | marketcap")
	outPath := flag.String("out", "", "Also write the JPEG to this path")
	caption := flag.String("caption", "", "Caption override (default: generated)")
	noSend := flag.Bool("no-send", false, "Render only, skip Telegram delivery")
	flag.Parse()

	mode, ok := treemap.ParseMode(*modeStr)
	if !ok {
		log.Fatalf("[heatmap] unknown mode %q", *modeStr)
	}

	cfg := config.Load()

	client, err := upstream.New(cfg.UpstreamBaseURL, cfg.UpstreamSecret,
		upstream.WithRateLimit(cfg.UpstreamRPS, cfg.UpstreamBurst))
	if err != nil {
		log.Fatalf("[heatmap] upstream client init failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	gifts, err := client.Gifts(ctx)
	if err != nil {
		log.Fatalf("[heatmap] catalog fetch failed: %v", err)
	}
	log.Printf("[heatmap] catalog loaded: %d gifts", len(gifts))

	jpeg, err := treemap.RenderExport(buildItems(gifts, mode))
	if err != nil {
		log.Fatalf("[heatmap] render failed: %v", err)
	}
	log.Printf("[heatmap] rendered %dx%d JPEG (%d bytes)",
		treemap.ExportWidth, treemap.ExportHeight, len(jpeg))

	if *outPath != "" {
		if err := os.WriteFile(*outPath, jpeg, 0o644); err != nil {
			log.Fatalf("[heatmap] write %s: %v", *outPath, err)
		}
		log.Printf("[heatmap] wrote %s", *outPath)
	}

	if *noSend {
		return
	}

	text := *caption
	if text == "" {
		text = fmt.Sprintf("Gift market heatmap (%s) %s",
			*modeStr, time.Now().UTC().Format("2006-01-02 15:04 UTC"))
	}

	var sender notification.PhotoSender
	switch {
	case cfg.TelegramBotToken != "" && cfg.TelegramChatID != "":
		sender = notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID)
	case cfg.UpstreamSecret != "":
		// No bot of our own; the backend relays the image to its channel.
		log.Println("[heatmap] no Telegram credentials, delivering via backend relay")
		sender = relaySender{client}
	default:
		log.Println("[heatmap] no delivery channel configured, logging instead")
		sender = notification.NewLogNotifier()
	}

	if err := sender.SendPhoto(ctx, jpeg, text); err != nil {
		log.Fatalf("[heatmap] delivery failed: %v", err)
	}
	log.Println("[heatmap] delivered")
}

// relaySender delivers the export through the backend's bot relay
// endpoint instead of a directly configured bot.
type relaySender struct {
	client *upstream.Client
}

func (s relaySender) SendPhoto(ctx context.Context, jpeg []byte, caption string) error {
	return s.client.SendImage(ctx, jpeg, caption)
}

// buildItems maps catalog gifts into weighted treemap tiles.
func buildItems(gifts []model.Gift, mode treemap.Mode) []treemap.Item {
	items := make([]treemap.Item, 0, len(gifts))
	for i := range gifts {
		g := &gifts[i]
		change := g.Change24h()

		weight := treemap.ChangeWeight(change)
		if mode == treemap.ModeMarketCap {
			weight = treemap.MarketCapWeight(g.MarketCap())
		}

		items = append(items, treemap.Item{
			ID:     g.ID,
			Name:   g.Name,
			Weight: weight,
			Change: change,
			Label:  fmt.Sprintf("%+.1f%%", change),
		})
	}
	return items
}
