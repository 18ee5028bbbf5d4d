// Command duelctl talks to a running duel server: it manages matches
// through the admin gRPC endpoint and can join a match as a player to
// watch its messages.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/ChuechTeam/CardLab-sub000/internal/server"
)

var (
	adminAddr = flag.String("admin", "127.0.0.1:9090", "admin gRPC address")
	password  = flag.String("password", os.Getenv("CARDLAB_ADMIN_PASSWORD"), "admin password")
	wsAddr    = flag.String("ws", "ws://localhost:8080", "websocket base URL")
	deck      = flag.String("deck", "", "deck of both players when creating a match")
	seed      = flag.Int64("seed", 0, "fixed seed when creating a match (0 for random)")
	limit     = flag.Int("limit", 20, "number of results to list")
	ready     = flag.Bool("ready", true, "report ready after joining with watch")
)

const usage = `usage: duelctl [flags] <command> [args]

commands:
  list                   list hosted matches
  get <match>            show one match
  create <p1> <p2>       create a match and print its join tokens
  remove <match>         stop a match
  results                list recent duel results
  packs                  list loaded and imported card packs
  watch <match> <token>  join a match and print what the server sends
`

func main() {
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	var err error
	if args[0] == "watch" {
		if len(args) != 3 {
			flag.Usage()
			os.Exit(2)
		}
		err = watch(ctx, args[1], args[2])
	} else {
		err = admin(ctx, args)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "duelctl: %v\n", err)
		os.Exit(1)
	}
}

func admin(ctx context.Context, args []string) error {
	method, req, err := adminRequest(args)
	if err != nil {
		return err
	}

	conn, err := grpc.NewClient(*adminAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx, "authorization", *password)

	resp, err := server.NewAdminClient(conn).Call(ctx, method, req)
	if err != nil {
		return err
	}
	out, err := protojson.MarshalOptions{Multiline: true}.Marshal(resp)
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func adminRequest(args []string) (string, map[string]any, error) {
	switch args[0] {
	case "list":
		return "ListMatches", nil, nil
	case "get", "remove":
		if len(args) != 2 {
			return "", nil, fmt.Errorf("%s needs a match id", args[0])
		}
		method := "GetMatch"
		if args[0] == "remove" {
			method = "RemoveMatch"
		}
		return method, map[string]any{"matchId": args[1]}, nil
	case "create":
		if len(args) != 3 {
			return "", nil, fmt.Errorf("create needs two player names")
		}
		req := map[string]any{"playerNames": []any{args[1], args[2]}}
		if *deck != "" {
			req["decks"] = []any{*deck, *deck}
		}
		if *seed != 0 {
			req["seed"] = *seed
		}
		return "CreateMatch", req, nil
	case "results":
		return "RecentResults", map[string]any{"limit": *limit}, nil
	case "packs":
		return "ListPacks", nil, nil
	default:
		return "", nil, fmt.Errorf("unknown command %q", args[0])
	}
}

// watch joins a match and prints the type of every message, and the full
// welcome state.
func watch(ctx context.Context, matchID, token string) error {
	u, err := url.Parse(*wsAddr)
	if err != nil {
		return err
	}
	u.Path = "/duel/ws"
	u.RawQuery = url.Values{"match": {matchID}, "token": {token}}.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("join refused: %s", resp.Status)
		}
		return err
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}()

	if *ready {
		msg := `{"type":"duelReportReady","header":{"requestId":1,"iteration":0}}`
		if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			return err
		}
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		var env struct {
			Type      string `json:"type"`
			Iteration *int   `json:"iteration"`
		}
		if err := json.Unmarshal(data, &env); err != nil {
			return fmt.Errorf("bad message: %w", err)
		}
		line := env.Type
		if env.Iteration != nil {
			line += " iteration=" + strconv.Itoa(*env.Iteration)
		}
		fmt.Println(line)
		if env.Type == "duelWelcome" {
			fmt.Println(string(data))
		}
	}
}
