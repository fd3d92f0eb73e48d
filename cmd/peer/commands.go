package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dkeye/meshroom/internal/adapters/rtc"
	"github.com/dkeye/meshroom/internal/client"
	"github.com/dkeye/meshroom/internal/domain"
	"github.com/dkeye/meshroom/internal/peer"
	"github.com/dkeye/meshroom/internal/protocol"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	flagCreate bool
	flagStdin  bool
)

var joinCmd = &cobra.Command{
	Use:   "join [room-id]",
	Short: "Join a room and keep links to every member until interrupted",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := signedIn(cmd)
		if err != nil {
			return err
		}

		var room domain.RoomID
		switch {
		case len(args) == 1:
			room, err = domain.ParseRoomID(args[0])
			if err != nil {
				return err
			}
			if !flagCreate {
				exists, err := c.CheckRoom(ctx, room)
				if err != nil {
					return err
				}
				if !exists {
					return fmt.Errorf("no meeting found with code %s", room)
				}
			}
		case flagCreate:
			room = domain.NewRoomID()
		default:
			return errors.New("room id required unless --create is set")
		}

		if err := c.Connect(ctx); err != nil {
			return err
		}
		fmt.Println(titleStyle.Render("joined " + string(room)))

		factory := rtc.NewTransportFactory(rtc.ConfigWithICEServers(peerCfg.ICEServers), rtc.MediaOptions{
			OnPacket: newPacketMeter().observe,
		})
		p := client.NewParticipant(c, room, factory, peer.Options{
			RecreateDelay:    peerCfg.RecreateDelay,
			NegotiateTimeout: peerCfg.NegotiateTimeout,
			Hooks: peer.Hooks{
				OnState: func(li peer.LinkInfo) {
					log.Info().Str("module", "cmd.peer").Str("remote", string(li.Remote)).Str("identity", string(li.Identity)).
						Str("role", li.Role.String()).Str("state", li.State.String()).Int("generation", li.Generation).Msg("link")
				},
			},
		})
		p.OnChat = func(m protocol.ChatMessage) {
			fmt.Println(chatLine(m.Timestamp, m.Sender, m.Text))
		}
		p.OnHistory = func(msgs []domain.ChatMessage) {
			fmt.Println(historyTable(msgs))
		}
		p.OnMembers = func(members []domain.Participant) {
			fmt.Println(mutedStyle.Render(fmt.Sprintf("%d other member(s) present", len(members))))
		}

		if flagStdin {
			go func() {
				select {
				case <-p.Joined():
				case <-ctx.Done():
					return
				}
				sc := bufio.NewScanner(os.Stdin)
				for sc.Scan() {
					if err := p.Chat(sc.Text()); err != nil {
						log.Warn().Str("module", "cmd.peer").Err(err).Msg("chat not sent")
					}
				}
			}()
		}

		err = p.Run(ctx)
		if errors.Is(err, ctx.Err()) {
			return nil
		}
		return err
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <room-id>",
	Short: "Print the stored chat history of a room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		room, err := domain.ParseRoomID(args[0])
		if err != nil {
			return err
		}
		c, err := signedIn(cmd)
		if err != nil {
			return err
		}
		msgs, err := c.History(cmd.Context(), room)
		if err != nil {
			return err
		}
		fmt.Println(historyTable(msgs))
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check <room-id>",
	Short: "Report whether a room is live or has history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		room, err := domain.ParseRoomID(args[0])
		if err != nil {
			return err
		}
		c, err := client.NewClient(peerCfg.ServerURL)
		if err != nil {
			return err
		}
		exists, err := c.CheckRoom(cmd.Context(), room)
		if err != nil {
			return err
		}
		fmt.Printf("%s exists: %t\n", room, exists)
		return nil
	},
}

func init() {
	joinCmd.Flags().BoolVar(&flagCreate, "create", false, "start a new room (random id when none is given)")
	joinCmd.Flags().BoolVar(&flagStdin, "chat", true, "send each stdin line as a chat message")
}

func signedIn(cmd *cobra.Command) (*client.Client, error) {
	if flagName == "" {
		return nil, errors.New("--name is required")
	}
	c, err := client.NewClient(peerCfg.ServerURL)
	if err != nil {
		return nil, err
	}
	id, err := c.SignIn(cmd.Context(), flagName)
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "cmd.peer").Str("identity", string(id)).Msg("signed in")
	return c, nil
}

func chatLine(at time.Time, sender domain.Identity, text string) string {
	return mutedStyle.Render(at.Local().Format("15:04")) + " " + senderStyle.Render(string(sender)) + " " + text
}
