package pwm

import "pwmgen-go/bus"

func topicConfig() bus.Topic { return bus.T("config", "pwm") }
func topicState() bus.Topic  { return bus.T("pwm", "state") }

// pwm/cap/<domain>/pwm/<name>/...
func capBase(domain, name string) bus.Topic { return bus.T("pwm", "cap", domain, "pwm", name) }

func capInfo(domain, name string) bus.Topic   { return capBase(domain, name).Append("info") }
func capStatus(domain, name string) bus.Topic { return capBase(domain, name).Append("status") }
func capState(domain, name string) bus.Topic  { return capBase(domain, name).Append("state") }

// pwm/cap/<domain>/pwm/<name>/control/<verb>
func capCtrl(domain, name, verb string) bus.Topic {
	return capBase(domain, name).Append("control", verb)
}

// pwm/cap/+/pwm/+/control/+
func ctrlWildcard() bus.Topic {
	return bus.T("pwm", "cap", "+", "pwm", "+", "control", "+")
}
