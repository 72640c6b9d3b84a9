package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/spf13/cobra"

	"github.com/venturelink/pitchcall/client"
	"github.com/venturelink/pitchcall/internal/callstate"
	"github.com/venturelink/pitchcall/internal/domain/events"
	"github.com/venturelink/pitchcall/internal/domain/models"
)

var (
	callServerURL  string
	callAuthToken  string
	callStunURL    string
	callRingWindow time.Duration
)

// callCmd - консольный клиент для ручной проверки сигналинга: два
// запущенных экземпляра с разными токенами могут дозвониться друг до
// друга через работающий сервер.
var callCmd = &cobra.Command{
	Use:   "call",
	Short: "Interactive signaling client for manual testing",
	Run: func(cmd *cobra.Command, args []string) {
		runCallClient(cmd.Context())
	},
}

// callEnv - клиентские настройки из окружения, флаги их перебивают
type callEnv struct {
	RingTimeout time.Duration `env:"RING_TIMEOUT" envDefault:"30s"`
}

func init() {
	clientEnv, err := env.ParseAs[callEnv]()
	if err != nil {
		clientEnv.RingTimeout = 30 * time.Second
	}

	callCmd.Flags().StringVar(&callServerURL, "server", "ws://localhost:5001/api/v1/ws", "signaling websocket URL")
	callCmd.Flags().StringVar(&callAuthToken, "token", "", "jwt cookie value from /api/auth/login")
	callCmd.Flags().StringVar(&callStunURL, "stun", "stun:stun.l.google.com:19302", "STUN server URL")
	callCmd.Flags().DurationVar(&callRingWindow, "ring-timeout", clientEnv.RingTimeout, "how long to wait for an answer")

	rootCmd.AddCommand(callCmd)
}

func runCallClient(ctx context.Context) {
	if callAuthToken == "" {
		log.Fatal("--token is required, login via /api/auth/login first")
	}

	c := client.New(client.Config{
		ServerURL:   callServerURL,
		AuthToken:   callAuthToken,
		ICEServers:  []webrtc.ICEServer{{URLs: []string{callStunURL}}},
		RingTimeout: callRingWindow,
	})

	c.OnIncomingCall = func(sessionID string, caller events.CallerInfo) {
		fmt.Printf("\n*** incoming call from %s (session %s), accept/reject? ***\n> ", caller.Name, sessionID)
	}

	c.OnStateChange = func(state callstate.State) {
		fmt.Printf("\n[%s]\n> ", state)
	}

	c.OnChatMessage = func(senderName, content string) {
		fmt.Printf("\n<%s> %s\n> ", senderName, content)
	}

	if err := c.Connect(ctx); err != nil {
		log.Fatalf("connect: %v", err)
	}

	go readCommands(c)

	if err := c.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("client stopped: %v", err)
	}
}

func readCommands(c *client.Client) {
	fmt.Println("commands: dial <user-uuid> | accept | reject | hangup | say <text> | mute | cam | quit")
	fmt.Print("> ")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		fields := strings.Fields(line)

		if len(fields) == 0 {
			fmt.Print("> ")
			continue
		}

		switch fields[0] {
		case "dial":
			if len(fields) != 2 {
				fmt.Println("usage: dial <user-uuid>")
				break
			}

			toUserID, err := uuid.Parse(fields[1])
			if err != nil {
				fmt.Println("bad user id:", err)
				break
			}

			sessionID := models.NewSessionID()
			fmt.Println("dialing, session", sessionID)
			c.Dial(toUserID, sessionID)

		case "accept":
			c.Accept()

		case "reject":
			c.Reject()

		case "hangup":
			c.HangUp()

		case "say":
			if len(fields) < 2 {
				fmt.Println("usage: say <text>")
				break
			}

			if err := c.SendChat(strings.TrimSpace(strings.TrimPrefix(line, "say"))); err != nil {
				fmt.Println("chat:", err)
			}

		case "mute":
			fmt.Println("muted:", c.ToggleMute())

		case "cam":
			fmt.Println("camera off:", c.ToggleCamera())

		case "quit":
			c.Close()
			return

		default:
			fmt.Println("unknown command:", fields[0])
		}

		fmt.Print("> ")
	}
}
