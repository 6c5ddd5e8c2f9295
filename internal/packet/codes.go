package packet

import (
	"strconv"
	"strings"
)

// Command is an IRC verb.
type Command string

// Commands a client sends or receives.
const (
	CmdAdmin   Command = "ADMIN"
	CmdAway    Command = "AWAY"
	CmdCap     Command = "CAP"
	CmdError   Command = "ERROR"
	CmdInfo    Command = "INFO"
	CmdInvite  Command = "INVITE"
	CmdIsOn    Command = "ISON"
	CmdJoin    Command = "JOIN"
	CmdKick    Command = "KICK"
	CmdKill    Command = "KILL"
	CmdLinks   Command = "LINKS"
	CmdList    Command = "LIST"
	CmdLUsers  Command = "LUSERS"
	CmdMode    Command = "MODE"
	CmdMOTD    Command = "MOTD"
	CmdNames   Command = "NAMES"
	CmdNick    Command = "NICK"
	CmdNotice  Command = "NOTICE"
	CmdOper    Command = "OPER"
	CmdPart    Command = "PART"
	CmdPass    Command = "PASS"
	CmdPing    Command = "PING"
	CmdPong    Command = "PONG"
	CmdPrivmsg Command = "PRIVMSG"
	CmdQuit    Command = "QUIT"
	CmdStats   Command = "STATS"
	CmdTagMsg  Command = "TAGMSG"
	CmdTime    Command = "TIME"
	CmdTopic   Command = "TOPIC"
	CmdUser    Command = "USER"
	CmdVersion Command = "VERSION"
	CmdWallops Command = "WALLOPS"
	CmdWatch   Command = "WATCH"
	CmdWho     Command = "WHO"
	CmdWhois   Command = "WHOIS"
	CmdWhowas  Command = "WHOWAS"
)

var commands = map[Command]bool{
	CmdAdmin: true, CmdAway: true, CmdCap: true, CmdError: true, CmdInfo: true,
	CmdInvite: true, CmdIsOn: true, CmdJoin: true, CmdKick: true, CmdKill: true,
	CmdLinks: true, CmdList: true, CmdLUsers: true, CmdMode: true, CmdMOTD: true,
	CmdNames: true, CmdNick: true, CmdNotice: true, CmdOper: true, CmdPart: true,
	CmdPass: true, CmdPing: true, CmdPong: true, CmdPrivmsg: true, CmdQuit: true,
	CmdStats: true, CmdTagMsg: true, CmdTime: true, CmdTopic: true, CmdUser: true,
	CmdVersion: true, CmdWallops: true, CmdWatch: true, CmdWho: true, CmdWhois: true,
	CmdWhowas: true,
}

// Reply is a numeric server reply.
type Reply int

// Replies the library reacts to or that are commonly awaited with callbacks.
const (
	RplWelcome       Reply = 1
	RplYourHost      Reply = 2
	RplCreated       Reply = 3
	RplMyInfo        Reply = 4
	RplISupport      Reply = 5
	RplUModeIs       Reply = 221
	RplLUserClient   Reply = 251
	RplAway          Reply = 301
	RplUserHost      Reply = 302
	RplIsOn          Reply = 303
	RplWhoisUser     Reply = 311
	RplWhoisServer   Reply = 312
	RplWhoisOperator Reply = 313
	RplEndOfWho      Reply = 315
	RplWhoisIdle     Reply = 317
	RplEndOfWhois    Reply = 318
	RplWhoisChannels Reply = 319
	RplListStart     Reply = 321
	RplList          Reply = 322
	RplListEnd       Reply = 323
	RplChannelModeIs Reply = 324
	RplNoTopic       Reply = 331
	RplTopic         Reply = 332
	RplTopicWhoTime  Reply = 333
	RplInviting      Reply = 341
	RplVersion       Reply = 351
	RplWhoReply      Reply = 352
	RplNamReply      Reply = 353
	RplLinks         Reply = 364
	RplEndOfLinks    Reply = 365
	RplEndOfNames    Reply = 366
	RplBanList       Reply = 367
	RplEndOfBanList  Reply = 368
	RplMOTD          Reply = 372
	RplMOTDStart     Reply = 375
	RplEndOfMOTD     Reply = 376
	RplYoureOper     Reply = 381
	RplTime          Reply = 391
	RplHostHidden    Reply = 396

	ErrNoSuchNick        Reply = 401
	ErrNoSuchServer      Reply = 402
	ErrNoSuchChannel     Reply = 403
	ErrCannotSendToChan  Reply = 404
	ErrTooManyChannels   Reply = 405
	ErrUnknownCommand    Reply = 421
	ErrNoMOTD            Reply = 422
	ErrNoNicknameGiven   Reply = 431
	ErrErroneusNickname  Reply = 432
	ErrNicknameInUse     Reply = 433
	ErrNickCollision     Reply = 436
	ErrUnavailResource   Reply = 437
	ErrNotOnChannel      Reply = 442
	ErrNotRegistered     Reply = 451
	ErrNeedMoreParams    Reply = 461
	ErrAlreadyRegistered Reply = 462
	ErrPasswdMismatch    Reply = 464
	ErrYoureBannedCreep  Reply = 465
	ErrChannelIsFull     Reply = 471
	ErrInviteOnlyChan    Reply = 473
	ErrBannedFromChan    Reply = 474
	ErrBadChannelKey     Reply = 475
	ErrChanOPrivsNeeded  Reply = 482
)

var replyNames = map[Reply]string{
	RplWelcome: "RPL_WELCOME", RplYourHost: "RPL_YOURHOST", RplCreated: "RPL_CREATED",
	RplMyInfo: "RPL_MYINFO", RplISupport: "RPL_ISUPPORT", RplUModeIs: "RPL_UMODEIS",
	RplLUserClient: "RPL_LUSERCLIENT", RplAway: "RPL_AWAY", RplUserHost: "RPL_USERHOST",
	RplIsOn: "RPL_ISON", RplWhoisUser: "RPL_WHOISUSER", RplWhoisServer: "RPL_WHOISSERVER",
	RplWhoisOperator: "RPL_WHOISOPERATOR", RplEndOfWho: "RPL_ENDOFWHO",
	RplWhoisIdle: "RPL_WHOISIDLE", RplEndOfWhois: "RPL_ENDOFWHOIS",
	RplWhoisChannels: "RPL_WHOISCHANNELS", RplListStart: "RPL_LISTSTART", RplList: "RPL_LIST",
	RplListEnd: "RPL_LISTEND", RplChannelModeIs: "RPL_CHANNELMODEIS", RplNoTopic: "RPL_NOTOPIC",
	RplTopic: "RPL_TOPIC", RplTopicWhoTime: "RPL_TOPICWHOTIME", RplInviting: "RPL_INVITING",
	RplVersion: "RPL_VERSION", RplWhoReply: "RPL_WHOREPLY", RplNamReply: "RPL_NAMREPLY",
	RplLinks: "RPL_LINKS", RplEndOfLinks: "RPL_ENDOFLINKS", RplEndOfNames: "RPL_ENDOFNAMES",
	RplBanList: "RPL_BANLIST", RplEndOfBanList: "RPL_ENDOFBANLIST", RplMOTD: "RPL_MOTD",
	RplMOTDStart: "RPL_MOTDSTART", RplEndOfMOTD: "RPL_ENDOFMOTD", RplYoureOper: "RPL_YOUREOPER",
	RplTime: "RPL_TIME", RplHostHidden: "RPL_HOSTHIDDEN",

	ErrNoSuchNick: "ERR_NOSUCHNICK", ErrNoSuchServer: "ERR_NOSUCHSERVER",
	ErrNoSuchChannel: "ERR_NOSUCHCHANNEL", ErrCannotSendToChan: "ERR_CANNOTSENDTOCHAN",
	ErrTooManyChannels: "ERR_TOOMANYCHANNELS", ErrUnknownCommand: "ERR_UNKNOWNCOMMAND",
	ErrNoMOTD: "ERR_NOMOTD", ErrNoNicknameGiven: "ERR_NONICKNAMEGIVEN",
	ErrErroneusNickname: "ERR_ERRONEUSNICKNAME", ErrNicknameInUse: "ERR_NICKNAMEINUSE",
	ErrNickCollision: "ERR_NICKCOLLISION", ErrUnavailResource: "ERR_UNAVAILRESOURCE",
	ErrNotOnChannel: "ERR_NOTONCHANNEL", ErrNotRegistered: "ERR_NOTREGISTERED",
	ErrNeedMoreParams: "ERR_NEEDMOREPARAMS", ErrAlreadyRegistered: "ERR_ALREADYREGISTERED",
	ErrPasswdMismatch: "ERR_PASSWDMISMATCH", ErrYoureBannedCreep: "ERR_YOUREBANNEDCREEP",
	ErrChannelIsFull: "ERR_CHANNELISFULL", ErrInviteOnlyChan: "ERR_INVITEONLYCHAN",
	ErrBannedFromChan: "ERR_BANNEDFROMCHAN", ErrBadChannelKey: "ERR_BADCHANNELKEY",
	ErrChanOPrivsNeeded: "ERR_CHANOPRIVSNEEDED",
}

// Code returns the three digit wire form of r.
func (r Reply) Code() string {
	s := strconv.Itoa(int(r))
	for len(s) < 3 {
		s = "0" + s
	}
	return s
}

// String returns the symbolic name of r, or its code if the name is unknown.
func (r Reply) String() string {
	if name, ok := replyNames[r]; ok {
		return name
	}
	return r.Code()
}

// Kind classifies a packet command.
type Kind int

const (
	KindUnknown Kind = iota
	KindCommand
	KindReply
)

func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindReply:
		return "reply"
	default:
		return "unknown"
	}
}

// LookupCommand reports whether code is a known IRC verb.
func LookupCommand(code string) (Command, bool) {
	c := Command(strings.ToUpper(code))
	return c, commands[c]
}

// LookupReply reports whether code is a three digit numeric listed in the
// reply table.
func LookupReply(code string) (Reply, bool) {
	if !isNumeric(code) {
		return 0, false
	}
	n, _ := strconv.Atoi(code)
	r := Reply(n)
	_, ok := replyNames[r]
	return r, ok
}

// Classify tells whether code is a known command, a known reply, or neither.
func Classify(code string) Kind {
	if _, ok := LookupCommand(code); ok {
		return KindCommand
	}
	if _, ok := LookupReply(code); ok {
		return KindReply
	}
	return KindUnknown
}
