package packet

import "strings"

// New builds a packet from a command and its parameters. The last argument
// becomes the trail when it contains a space, starts with a colon or is
// empty; all other arguments are middle parameters.
func New(cmd Command, args ...string) Packet {
	p := Packet{Command: string(cmd)}
	if len(args) == 0 {
		return p
	}
	last := args[len(args)-1]
	if last == "" || strings.ContainsRune(last, ' ') || last[0] == ':' {
		p.Params = append(p.Params, args[:len(args)-1]...)
		p.Trail = last
		return p
	}
	p.Params = append(p.Params, args...)
	return p
}

// Pass sets the connection password.
func Pass(password string) Packet {
	return Packet{Command: string(CmdPass), Params: []string{password}}
}

// Nick requests a nickname.
func Nick(name string) Packet {
	return Packet{Command: string(CmdNick), Params: []string{name}}
}

// User registers the user name and real name during connection setup.
func User(user, realName string) Packet {
	return Packet{Command: string(CmdUser), Params: []string{user, "0", "*"}, Trail: realName}
}

// Join joins one or more channels.
func Join(channels ...string) Packet {
	return Packet{Command: string(CmdJoin), Params: []string{strings.Join(channels, ",")}}
}

// Part leaves a channel, with an optional reason.
func Part(channel, reason string) Packet {
	return Packet{Command: string(CmdPart), Params: []string{channel}, Trail: reason}
}

// Privmsg sends text to a channel or a nick.
func Privmsg(target, text string) Packet {
	return Packet{Command: string(CmdPrivmsg), Params: []string{target}, Trail: text}
}

// Notice sends a notice to a channel or a nick.
func Notice(target, text string) Packet {
	return Packet{Command: string(CmdNotice), Params: []string{target}, Trail: text}
}

// Ping asks the server to echo token back in a PONG.
func Ping(token string) Packet {
	return Packet{Command: string(CmdPing), Trail: token}
}

// Pong answers a server PING.
func Pong(token string) Packet {
	return Packet{Command: string(CmdPong), Trail: token}
}

// Quit ends the session.
func Quit(reason string) Packet {
	return Packet{Command: string(CmdQuit), Trail: reason}
}

// Mode changes or queries modes of a channel or user.
func Mode(target string, modes ...string) Packet {
	return Packet{Command: string(CmdMode), Params: append([]string{target}, modes...)}
}

// Kick removes nick from channel.
func Kick(channel, nick, reason string) Packet {
	return Packet{Command: string(CmdKick), Params: []string{channel, nick}, Trail: reason}
}

// Topic sets the channel topic, or queries it when topic is empty.
func Topic(channel, topic string) Packet {
	return Packet{Command: string(CmdTopic), Params: []string{channel}, Trail: topic}
}

// Links asks for the server links of the network.
func Links() Packet {
	return Packet{Command: string(CmdLinks)}
}

// Whois asks for information about nick.
func Whois(nick string) Packet {
	return Packet{Command: string(CmdWhois), Params: []string{nick}}
}
