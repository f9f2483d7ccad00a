package main

import (
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/domain/event"
	relay "chat-relay/infrastructure/http"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gookit/color"
	"github.com/spf13/cobra"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// watchFrame mirrors the server envelope with a raw payload.
type watchFrame struct {
	Type    event.Kind      `json:"type"`
	Ts      int64           `json:"ts"`
	Payload json.RawMessage `json:"payload"`
}

var watchAutoRead bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow live events, optionally marking conversations as read",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		client := newAPIClient(config)
		self, err := auth.SubjectOf(client.token)
		if err != nil {
			return fmt.Errorf("CHAT_TOKEN: %w", err)
		}
		return watch(ctx, client, self)
	},
}

func init() {
	watchCmd.Flags().BoolVar(&watchAutoRead, "auto-read", false, "Acknowledge and mark every incoming message as read")
}

func watch(ctx context.Context, client *apiClient, self domain.UserID) error {
	dialCtx, cancel := withTimeout(ctx)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, client.websocketURL(), &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + client.token}},
	})
	if err != nil {
		return fmt.Errorf("websocket dial failed: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")
	color.Gray.Println("connected, waiting for events")

	for {
		var frame watchFrame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			if errors.Is(ctx.Err(), context.Canceled) || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return fmt.Errorf("connection lost: %w", err)
		}
		if err := handleWatchFrame(ctx, conn, self, frame); err != nil {
			return err
		}
	}
}

func handleWatchFrame(ctx context.Context, conn *websocket.Conn, self domain.UserID, frame watchFrame) error {
	at := time.UnixMilli(frame.Ts).Format("15:04:05")
	switch frame.Type {
	case event.NewMessageKind:
		var e event.NewMessage
		if err := json.Unmarshal(frame.Payload, &e); err != nil {
			return fmt.Errorf("bad %s frame: %w", frame.Type, err)
		}
		color.Green.Printf("%s new message ", at)
		printMessage(e.Message)
		if watchAutoRead && e.Message.ReceiverID == self {
			return autoRead(ctx, conn, e.Message)
		}
	case event.ConversationReadKind:
		var e event.ConversationRead
		if err := json.Unmarshal(frame.Payload, &e); err != nil {
			return fmt.Errorf("bad %s frame: %w", frame.Type, err)
		}
		color.Blue.Printf("%s %s read %d message(s)\n", at, e.ReaderID, e.Count)
	case event.MessageDeliveredKind:
		var e event.MessageDelivered
		if err := json.Unmarshal(frame.Payload, &e); err != nil {
			return fmt.Errorf("bad %s frame: %w", frame.Type, err)
		}
		color.Cyan.Printf("%s %d message(s) delivered to %s\n", at, len(e.MessageIDs), e.ReceiverID)
	case relay.TypeError:
		var e relay.ErrorEvent
		if err := json.Unmarshal(frame.Payload, &e); err != nil {
			return fmt.Errorf("bad %s frame: %w", frame.Type, err)
		}
		color.Red.Printf("%s error %s: %s\n", at, e.Code, e.Message)
	default:
		color.Gray.Printf("%s %s %s\n", at, frame.Type, frame.Payload)
	}
	return nil
}

// autoRead acknowledges an incoming message and clears the conversation badge.
func autoRead(ctx context.Context, conn *websocket.Conn, m domain.Message) error {
	ack, err := json.Marshal(relay.AckPayload{SenderID: m.SenderID, MessageIDs: []string{m.ID.String()}})
	if err != nil {
		return err
	}
	if err := wsjson.Write(ctx, conn, relay.InboundFrame{Type: relay.TypeAck, Payload: ack}); err != nil {
		return fmt.Errorf("ack failed: %w", err)
	}

	read, err := json.Marshal(relay.MarkAsReadPayload{CounterpartID: m.SenderID})
	if err != nil {
		return err
	}
	if err := wsjson.Write(ctx, conn, relay.InboundFrame{Type: relay.TypeMarkAsRead, Payload: read}); err != nil {
		return fmt.Errorf("markAsRead failed: %w", err)
	}
	return nil
}
