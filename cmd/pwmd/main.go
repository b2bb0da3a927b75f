// Command pwmd manages PWM signal generators described by a YAML
// config and exposes them on the in-process bus. With -devmem the
// register windows come from physical memory (root only); the default
// is an in-memory simulation for development.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pwmgen-go/bus"
	"pwmgen-go/services/pwm"
	"pwmgen-go/types"
)

func main() {
	cfgPath := flag.String("config", "pwm.yaml", "service configuration file")
	devmem := flag.Bool("devmem", false, "map real register windows through /dev/mem")
	flag.Parse()

	cfg, err := pwm.LoadFile(*cfgPath)
	if err != nil {
		println("pwmd:", err.Error())
		os.Exit(1)
	}

	var hw pwm.Hardware = pwm.SimHardware{}
	if *devmem {
		hw = pwm.DevMemHardware{}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b := bus.New(16)
	svc := pwm.NewService(b.NewConnection("pwm"), hw)
	go svc.Run(ctx)

	// Diagnostics tap: echo every capability message.
	mon := b.NewConnection("mon")
	tap := mon.Subscribe(bus.T("pwm", "cap", "+", "+", "+", "+"))
	go func() {
		for m := range tap.Channel() {
			println("[pwmd]", topicString(m.Topic))
		}
	}()

	ui := b.NewConnection("ui")
	stateSub := ui.Subscribe(bus.T("pwm", "state"))
	ui.Publish(ui.NewMessage(bus.T("config", "pwm"), cfg, true))
	waitReady(stateSub)
	ui.Unsubscribe(stateSub)

	if !*devmem && len(cfg.Generators) > 0 {
		demo(ui, cfg.Generators[0])
	}

	<-ctx.Done()
	println("pwmd: shutting down")
}

func waitReady(sub *bus.Subscription) {
	deadline := time.After(2 * time.Second)
	for {
		select {
		case m := <-sub.Channel():
			if st, ok := m.Payload.(types.ServiceState); ok && st.Level == "ready" {
				return
			}
		case <-deadline:
			println("pwmd: service did not report ready")
			return
		}
	}
}

// demo drives the first simulated generator once so a bare run shows
// the full apply/read exchange.
func demo(conn *bus.Connection, g types.Generator) {
	domain := g.Domain
	if domain == "" {
		domain = "io"
	}
	ctrl := bus.T("pwm", "cap", domain, "pwm", g.ID, "control", "apply")
	read := bus.T("pwm", "cap", domain, "pwm", g.ID, "control", "read")

	cfg := types.PWMConfig{PeriodNs: 1_000_000, DutyNs: 250_000, Enabled: true}
	if _, err := requestWait(conn, ctrl, cfg); err != nil {
		println("pwmd: demo apply:", err.Error())
		return
	}
	reply, err := requestWait(conn, read, nil)
	if err != nil {
		println("pwmd: demo read:", err.Error())
		return
	}
	if st, ok := reply.(types.PWMState); ok {
		println("pwmd:", g.ID, "period_ns:", st.PeriodNs, "duty_ns:", st.DutyNs,
			"polarity:", st.Polarity.String(), "enabled:", st.Enabled)
	}
}

func requestWait(conn *bus.Connection, topic bus.Topic, payload any) (any, error) {
	replyTo := topic.Append("reply")
	sub := conn.Subscribe(replyTo)
	defer conn.Unsubscribe(sub)

	conn.Publish(&bus.Message{Topic: topic, Payload: payload, ReplyTo: replyTo})
	select {
	case m := <-sub.Channel():
		if er, ok := m.Payload.(types.ErrorReply); ok && !er.OK {
			return nil, errors.New(er.Error)
		}
		return m.Payload, nil
	case <-time.After(2 * time.Second):
		return nil, errors.New("request timed out")
	}
}

func topicString(t bus.Topic) string {
	s := ""
	for i, lv := range t {
		if i > 0 {
			s += "/"
		}
		s += lv
	}
	return s
}
