package main

import (
	"chat-relay/domain"
	"chat-relay/repositories"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

func main() {
	dbPath := flag.String("db", "data/badger", "Path to badger DB")
	chat := flag.String("chat", "", "Conversation to dump, every conversation when empty")
	flag.Parse()

	// BypassLockGuard allows reading while the relay holds the lock
	db, err := badger.Open(repositories.BadgerOptions(*dbPath, false).
		WithReadOnly(true).
		WithBypassLockGuard(true))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	store := repositories.NewBadgerConversationStore(db, logs.GetLoggerFromLevel(slog.LevelWarn))
	defer store.Close()

	if err := dump(context.Background(), os.Stdout, store, domain.ConversationID(*chat)); err != nil {
		log.Fatal(err)
	}
}

type historyReader interface {
	Conversations() ([]domain.ConversationID, error)
	ListOrdered(ctx context.Context, conversationID domain.ConversationID) ([]domain.Message, error)
}

// dump prints the history of one conversation, or of all of them.
func dump(ctx context.Context, w io.Writer, store historyReader, chat domain.ConversationID) error {
	conversations := []domain.ConversationID{chat}
	if chat == "" {
		ids, err := store.Conversations()
		if err != nil {
			return err
		}
		conversations = ids
	}

	for _, conversationID := range conversations {
		messages, err := store.ListOrdered(ctx, conversationID)
		if err != nil {
			return err
		}
		header := fmt.Sprintf(" %s (%d messages) ", conversationID, len(messages))
		fmt.Fprintln(w, color.New(color.BgBlack, color.FgGreen).Render(header))
		render(w, messages)
	}
	return nil
}

func render(w io.Writer, messages []domain.Message) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Timestamp", "ID", "From", "To", "Tag", "Status", "Content"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, m := range messages {
		// First 8 characters are enough to tell messages apart
		displayID := m.ID.String()[:8]
		table.Append([]string{
			m.Timestamp.Format(time.RFC3339Nano),
			displayID,
			string(m.From),
			string(m.To),
			lo.FromPtrOr(m.Tag, "-"),
			string(m.Status),
			m.Content,
		})
	}
	table.Render()
}
