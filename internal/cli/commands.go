package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	httpapi "github.com/skillsphere/meetings/internal/api/http"
	"github.com/skillsphere/meetings/internal/domain"
)

type clientFactory func() (*Client, error)

func newRoomCommand(client clientFactory) *cobra.Command {
	room := &cobra.Command{
		Use:   "room",
		Short: "Manage meeting rooms",
	}

	var (
		req     CreateRoomRequest
		private bool
		noChat  bool
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a room you host",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			if private || noChat {
				settings := domain.DefaultRoomSettings()
				settings.Private = private
				settings.EnableChat = !noChat
				req.Settings = &settings
			}
			created, err := c.CreateRoom(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tcapacity %d\n", created.Code, created.Name, created.Capacity)
			return nil
		},
	}
	create.Flags().StringVar(&req.Name, "name", "", "room display name")
	create.Flags().StringVar(&req.Password, "password", "", "access secret, empty for an open room")
	create.Flags().IntVar(&req.Capacity, "capacity", 0, "participant limit, 0 for the server default")
	create.Flags().IntVar(&req.DurationMinutes, "duration", 0, "planned length in minutes")
	create.Flags().BoolVar(&private, "private", false, "mark the room private")
	create.Flags().BoolVar(&noChat, "no-chat", false, "disable chat")
	_ = create.MarkFlagRequired("name")

	get := &cobra.Command{
		Use:   "get CODE",
		Short: "Show a room's configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			r, err := c.GetRoom(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "code\t%s\n", r.Code)
			fmt.Fprintf(w, "name\t%s\n", r.Name)
			fmt.Fprintf(w, "host\t%s\n", r.HostID)
			fmt.Fprintf(w, "capacity\t%d\n", r.Capacity)
			fmt.Fprintf(w, "participants\t%d\n", r.ParticipantCount)
			fmt.Fprintf(w, "password\t%t\n", r.HasPassword)
			fmt.Fprintf(w, "chat\t%t\n", r.Settings.EnableChat)
			fmt.Fprintf(w, "recording\t%t\n", r.Settings.AllowRecording)
			return w.Flush()
		},
	}

	participants := &cobra.Command{
		Use:   "participants CODE",
		Short: "List who is in a room right now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			list, err := c.Participants(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tUSER\tNAME\tROLE\tMUTED")
			for _, p := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", p.ID, p.UserID, p.DisplayName, role(p), p.Muted)
			}
			return w.Flush()
		},
	}

	room.AddCommand(create, get, participants)
	return room
}

func newRecordingsCommand(client clientFactory) *cobra.Command {
	recordings := &cobra.Command{
		Use:   "recordings",
		Short: "Manage your meeting recordings",
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List recordings you uploaded",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			recs, err := c.Recordings(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tROOM\tSIZE\tTYPE\tCREATED")
			for _, rec := range recs {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", rec.ID, rec.RoomCode, rec.Size, rec.ContentType, rec.CreatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
	recordings.AddCommand(list)
	return recordings
}

func newTokenCommand() *cobra.Command {
	var (
		secret string
		user   string
		name   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a development bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := httpapi.IssueToken(secret, domain.Identity{UserID: user, DisplayName: name}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("AUTH_JWT_SECRET"), "signing secret, defaults to $AUTH_JWT_SECRET")
	cmd.Flags().StringVar(&user, "subject", "", "user id to put in the token")
	cmd.Flags().StringVar(&name, "display-name", "", "display name to put in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func newJoinCommand(client clientFactory) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "join CODE",
		Short: "Join a room from the terminal",
		Long: `Join a room and print its events. Each line typed is sent as a chat message.
Lines starting with a slash are commands: /hand, /react EMOJI, /leave.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runSession(ctx, c, args[0], password, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "room access secret")
	return cmd
}

// runSession joins code and pumps events to out and lines from in until the
// meeting ends, the input closes or ctx is cancelled.
func runSession(ctx context.Context, c *Client, code, password string, in io.Reader, out io.Writer) error {
	sess, err := c.Dial(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.Send(domain.TypeJoinRoom, "", domain.JoinRequest{Code: code, Secret: password}); err != nil {
		return err
	}

	received := make(chan error, 1)
	go func() {
		for {
			msg, err := sess.Receive()
			if err != nil {
				received <- err
				return
			}
			printEvent(out, msg)
			switch msg.Type {
			case domain.TypeMeetingEnded, domain.TypeRemoved:
				received <- nil
				return
			case domain.TypeError:
				var payload domain.ErrorPayload
				if msg.Decode(&payload) == nil && isJoinFailure(payload.Code) {
					received <- fmt.Errorf("join failed: %s", payload.Message)
					return
				}
			}
		}
	}()

	typed := make(chan struct{})
	go func() {
		defer close(typed)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if line == "/leave" {
				return
			}
			if err := sendLine(sess, line); err != nil {
				fmt.Fprintln(out, "send failed:", err)
				return
			}
		}
	}()

	select {
	case err := <-received:
		return err
	case <-typed:
	case <-ctx.Done():
	}
	_ = sess.Send(domain.TypeLeaveRoom, "", nil)
	return nil
}

func sendLine(sess *Session, line string) error {
	switch {
	case line == "/hand":
		return sess.Send(domain.TypeRaiseHand, "", domain.RaiseHandRequest{Raised: true})
	case strings.HasPrefix(line, "/react "):
		return sess.Send(domain.TypeReaction, "", domain.ReactionRequest{Emoji: strings.TrimPrefix(line, "/react ")})
	default:
		return sess.Send(domain.TypeChat, "", domain.ChatRequest{Message: line})
	}
}

func isJoinFailure(code string) bool {
	switch code {
	case "room_not_found", "invalid_credentials", "room_full", "already_in_room":
		return true
	}
	return false
}

func printEvent(out io.Writer, msg domain.SignalMessage) {
	switch msg.Type {
	case domain.TypeJoined:
		var p domain.JoinedPayload
		if msg.Decode(&p) == nil {
			fmt.Fprintf(out, "joined %s (%s) as %s, %s\n", p.Room.Code, p.Room.Name, p.Participant.ID, role(p.Participant))
			for _, other := range p.Participants {
				fmt.Fprintf(out, "  %s %s\n", other.DisplayName, role(other))
			}
			return
		}
	case domain.TypeParticipantJoined:
		var p domain.Participant
		if msg.Decode(&p) == nil {
			fmt.Fprintf(out, "+ %s joined\n", p.DisplayName)
			return
		}
	case domain.TypeParticipantLeft:
		var p domain.ParticipantLeft
		if msg.Decode(&p) == nil {
			fmt.Fprintf(out, "- %s left (%s)\n", p.ParticipantID, p.Reason)
			return
		}
	case domain.TypeHostChanged:
		var p domain.HostChanged
		if msg.Decode(&p) == nil {
			fmt.Fprintf(out, "* %s is now the host\n", p.DisplayName)
			return
		}
	case domain.TypeChat:
		var m domain.ChatMessage
		if msg.Decode(&m) == nil {
			fmt.Fprintf(out, "[%s] %s\n", m.DisplayName, m.Content)
			return
		}
	case domain.TypeError:
		var p domain.ErrorPayload
		if msg.Decode(&p) == nil {
			fmt.Fprintf(out, "error: %s (%s)\n", p.Message, p.Code)
			return
		}
	}
	fmt.Fprintf(out, "%s %s\n", msg.Type, compact(msg.Payload))
}

func compact(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	return string(raw)
}

func role(p domain.Participant) string {
	if p.IsHost {
		return "host"
	}
	return "guest"
}
