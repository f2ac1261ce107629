package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/gorilla/websocket"

	"savegrid.ai/internal/protocol"
	"savegrid.ai/internal/sim/failure"
)

func main() {
	var (
		url      = flag.String("url", "ws://127.0.0.1:8080/v1/ws", "ws url")
		name     = flag.String("name", "bot", "client name")
		observe  = flag.Bool("observe", false, "connect as observer and only log")
		surge    = flag.Int("surge_waiting", 40, "raise severity to 1.0 when this many patients are waiting (0 disables)")
		baseline = flag.Float64("baseline_severity", 0.8, "severity restored once the surge clears")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	role := "operator"
	if *observe {
		role = "observer"
	}
	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      *name,
		Role:            role,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.Close()
	}()

	p := newPlanner(*surge, *baseline)
	send := func(m *protocol.PolicyMsg) {
		if m == nil || *observe {
			return
		}
		if err := conn.WriteJSON(m); err != nil {
			logger.Printf("send POLICY: %v", err)
		}
	}

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
			logger.Printf("WELCOME client_id=%s session=%s scenario=%s tick=%d policy=%v",
				w.ClientID, w.SessionID, w.Scenario.Name, w.Tick, w.Capabilities.Policy)

		case protocol.TypeStep:
			var s protocol.StepMsg
			if err := json.Unmarshal(msg, &s); err != nil {
				continue
			}
			logger.Printf("tick=%d committed=%d rejected=%d waiting=%d cost=%.2f",
				s.Tick, len(s.Committed), len(s.Rejected), s.Waiting, s.Objective.Cost)
			send(p.onStep(s))

		case protocol.TypeAlert:
			var a protocol.AlertMsg
			if err := json.Unmarshal(msg, &a); err != nil {
				continue
			}
			if a.Alert.Resolved {
				logger.Printf("resolved %s", a.Alert.Type)
			} else {
				logger.Printf("ALERT %s (%s): %s", a.Alert.Type, a.Alert.Severity, a.Alert.Message)
			}
			send(p.onAlert(a.Alert))

		case protocol.TypeAck:
			var ack protocol.AckMsg
			if err := json.Unmarshal(msg, &ack); err != nil {
				continue
			}
			if !ack.Accepted {
				logger.Printf("POLICY %s rejected: %s %s", ack.AckFor, ack.Code, ack.Message)
			}
		}
	}
}

// planner turns the live stream into operator overrides: mutual aid while beds or
// ambulances are exhausted anywhere, oxygen conservation while a hospital is out, and a
// severity surge while the waiting queue is long.
type planner struct {
	surgeAt  int
	baseline float64

	active  map[string]bool
	mutual  bool
	surging bool
	seq     int
}

func newPlanner(surgeAt int, baseline float64) *planner {
	return &planner{surgeAt: surgeAt, baseline: baseline, active: map[string]bool{}}
}

func (p *planner) onAlert(a protocol.AlertObs) *protocol.PolicyMsg {
	p.active[a.Type] = !a.Resolved
	switch failure.Type(a.Type) {
	case failure.NoBedsAnywhere, failure.NoAmbulances:
		want := p.active[string(failure.NoBedsAnywhere)] || p.active[string(failure.NoAmbulances)]
		if want == p.mutual {
			return nil
		}
		p.mutual = want
		return p.policy(nil, map[string]bool{"mutual_aid_activated": want}, a.Type)
	case failure.OxygenExhausted:
		if a.Resolved {
			return nil
		}
		return p.policy(nil, map[string]bool{"preserve_oxygen_reserves": true}, a.Type)
	}
	return nil
}

func (p *planner) onStep(s protocol.StepMsg) *protocol.PolicyMsg {
	if p.surgeAt <= 0 {
		return nil
	}
	switch {
	case !p.surging && s.Waiting >= p.surgeAt:
		p.surging = true
		sev := 1.0
		return p.policy(&sev, nil, fmt.Sprintf("surge: %d waiting", s.Waiting))
	case p.surging && s.Waiting < p.surgeAt/2:
		p.surging = false
		sev := p.baseline
		return p.policy(&sev, nil, fmt.Sprintf("surge cleared: %d waiting", s.Waiting))
	}
	return nil
}

func (p *planner) policy(sev *float64, rules map[string]bool, reason string) *protocol.PolicyMsg {
	p.seq++
	return &protocol.PolicyMsg{
		Type:            protocol.TypePolicy,
		ProtocolVersion: protocol.Version,
		ReqID:           fmt.Sprintf("bot_%d", p.seq),
		Severity:        sev,
		Rules:           rules,
		Reason:          reason,
	}
}
