package main

import (
	"encoding/json"
	"flag"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"railnav/internal/input"
	"railnav/internal/logging"
	"railnav/internal/protocol"
)

func main() {
	var (
		url     = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name    = flag.String("name", "bot", "rider name")
		vehicle = flag.String("vehicle", "", "grid|track (default: server's choice)")
		resume  = flag.String("resume", "", "resume token from an earlier session")
		seed    = flag.Int64("seed", time.Now().UnixNano(), "turn schedule seed")
	)
	flag.Parse()

	logger, err := logging.New(logging.Options{Level: "info"})
	if err != nil {
		panic(err)
	}
	logger = logger.Named("bot")
	defer logging.Sync(logger)

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalw("dial", "url", *url, "err", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		RiderName:       *name,
		Vehicle:         *vehicle,
		ResumeToken:     *resume,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalw("send HELLO", "err", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	d := &driver{rng: rand.New(rand.NewSource(*seed)), log: logger}
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Infow("WELCOME", "rider", w.RiderID, "vehicle", w.Vehicle, "map", w.Map.ID, "tick_rate", w.WorldParams.TickRateHz, "resume_token", w.ResumeToken)

		case protocol.TypeState:
			var st protocol.StateMsg
			if err := json.Unmarshal(msg, &st); err != nil {
				continue
			}
			if held, ok := d.next(&st); ok {
				in := protocol.InputMsg{Type: protocol.TypeInput, ProtocolVersion: protocol.Version, Held: held.Names()}
				if err := conn.WriteJSON(in); err != nil {
					return
				}
			}

		case protocol.TypeError:
			var e protocol.ErrorMsg
			_ = json.Unmarshal(msg, &e)
			logger.Warnw("server error", "code", e.Code, "message", e.Message)
		}
	}
}

// driver keeps MOVE held and taps a random turn now and then. On a dead end or a
// corner prompt it picks a side immediately.
type driver struct {
	rng  *rand.Rand
	log  *zap.SugaredLogger
	sent input.Command
	turn input.Command
	tap  int // ticks left holding turn
}

func (d *driver) press() {
	d.tap = 2
	switch d.rng.Intn(4) {
	case 0:
		d.turn = input.Reverse
	case 1:
		d.turn = input.Right
	default:
		d.turn = input.Left
	}
}

func (d *driver) next(st *protocol.StateMsg) (input.Command, bool) {
	for _, ev := range st.Events {
		switch ev {
		case "DEAD_END", "STOPPED":
			d.log.Infow("blocked", "tick", st.Tick, "event", ev, "pos", st.Self.Pos)
			d.press()
		}
	}
	if d.tap == 0 && (st.Self.Corner != nil || d.rng.Intn(40) == 0) {
		d.press()
	}

	want := input.Move
	if d.tap > 0 {
		d.tap--
		want |= d.turn
	}
	if want == d.sent {
		return want, false
	}
	d.sent = want
	return want, true
}
