package main

import (
	"chat-relay/domain"
	relay "chat-relay/infrastructure/http"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gookit/color"
	"github.com/spf13/cobra"
)

var (
	// register
	registerRole        string
	registerDisplayName string

	// send
	sendType            string
	sendAttachmentID    string
	sendClientMessageID string

	// messages
	messagesCursor string
	messagesLimit  int
)

var registerCmd = &cobra.Command{
	Use:   "register <email> <password>",
	Short: "Create an account and print its token",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var token relay.TokenResponse
		body := relay.RegisterBody{Email: args[0], Password: args[1], Role: registerRole, DisplayName: registerDisplayName}
		if err := newAPIClient(config).do(cmd.Context(), http.MethodPost, "/v1/auth/register", body, &token); err != nil {
			return err
		}
		fmt.Println(token.Token)
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login <email> <password>",
	Short: "Print a token, export it as CHAT_TOKEN",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var token relay.TokenResponse
		body := relay.LoginBody{Email: args[0], Password: args[1]}
		if err := newAPIClient(config).do(cmd.Context(), http.MethodPost, "/v1/auth/login", body, &token); err != nil {
			return err
		}
		fmt.Println(token.Token)
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <receiver-id> [content]",
	Short: "Send a message to a correspondent",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := relay.SendMessageBody{
			ReceiverID:      domain.UserID(args[0]),
			Type:            sendType,
			AttachmentID:    sendAttachmentID,
			ClientMessageID: sendClientMessageID,
		}
		if len(args) == 2 {
			body.Content = args[1]
		}
		var message domain.Message
		if err := newAPIClient(config).do(cmd.Context(), http.MethodPost, "/v1/messages", body, &message); err != nil {
			return err
		}
		printMessage(message)
		return nil
	},
}

var conversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "List conversations, most recent first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp relay.ConversationsResponse
		if err := newAPIClient(config).do(cmd.Context(), http.MethodGet, "/v1/conversations", nil, &resp); err != nil {
			return err
		}
		for _, c := range resp.Conversations {
			unread := ""
			if c.UnreadCount > 0 {
				unread = color.New(color.FgRed, color.OpBold).Sprintf(" (%d unread)", c.UnreadCount)
			}
			fmt.Printf("%s%s\n  ", color.Cyan.Sprint(c.PartnerID), unread)
			printMessage(c.LastMessage)
		}
		return nil
	},
}

var messagesCmd = &cobra.Command{
	Use:   "messages <partner-id>",
	Short: "Show one page of a conversation, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := url.Values{}
		if messagesCursor != "" {
			query.Set("cursor", messagesCursor)
		}
		if messagesLimit > 0 {
			query.Set("limit", strconv.Itoa(messagesLimit))
		}
		path := "/v1/conversations/" + url.PathEscape(args[0]) + "/messages"
		if len(query) > 0 {
			path += "?" + query.Encode()
		}

		var resp relay.MessagesResponse
		if err := newAPIClient(config).do(cmd.Context(), http.MethodGet, path, nil, &resp); err != nil {
			return err
		}
		for _, m := range resp.Messages {
			printMessage(m)
		}
		if resp.NextCursor != nil {
			color.Gray.Printf("next cursor: %s\n", *resp.NextCursor)
		}
		return nil
	},
}

var readCmd = &cobra.Command{
	Use:   "read <partner-id>",
	Short: "Mark a conversation as read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp relay.CountResponse
		path := "/v1/conversations/" + url.PathEscape(args[0]) + "/read"
		if err := newAPIClient(config).do(cmd.Context(), http.MethodPost, path, nil, &resp); err != nil {
			return err
		}
		fmt.Printf("%d message(s) marked as read\n", resp.Count)
		return nil
	},
}

func init() {
	registerCmd.Flags().StringVar(&registerRole, "role", string(domain.RoleCandidate), "Account role (candidate or instructor)")
	registerCmd.Flags().StringVar(&registerDisplayName, "name", "", "Display name")

	sendCmd.Flags().StringVar(&sendType, "type", "", "Message type (text, image, file)")
	sendCmd.Flags().StringVar(&sendAttachmentID, "attachment", "", "Attachment id returned by an upload")
	sendCmd.Flags().StringVar(&sendClientMessageID, "client-id", "", "Client message id used for deduplication")

	messagesCmd.Flags().StringVar(&messagesCursor, "cursor", "", "Cursor returned by the previous page")
	messagesCmd.Flags().IntVar(&messagesLimit, "limit", 0, "Page size, server default when 0")
}

func printMessage(m domain.Message) {
	fmt.Printf("%s %s -> %s [%s] %s\n",
		color.Gray.Sprint(m.CreatedAt.Format("2006-01-02 15:04:05")),
		color.Green.Sprint(m.SenderID),
		color.Cyan.Sprint(m.ReceiverID),
		statusColour(m.Status),
		describeContent(m))
}

func statusColour(s domain.Status) string {
	switch s {
	case domain.StatusRead:
		return color.Blue.Sprint(s.String())
	case domain.StatusDelivered:
		return color.Green.Sprint(s.String())
	default:
		return color.Yellow.Sprint(s.String())
	}
}

func describeContent(m domain.Message) string {
	if m.AttachmentID == "" {
		return m.Content
	}
	return fmt.Sprintf("%s (attachment %s)", m.Content, m.AttachmentID)
}
