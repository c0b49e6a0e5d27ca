package config

import "github.com/oshokin/jail-release/internal/repository/jailconf"

// DefaultRCConf returns the rc.conf keys every fetched release is configured with.
func DefaultRCConf() []jailconf.Setting {
	return []jailconf.Setting{
		{Key: "netif_enable", Value: false},
		{Key: "sendmail_enable", Value: false},
		{Key: "sendmail_submit_enable", Value: false},
		{Key: "sendmail_msp_queue_enable", Value: false},
		{Key: "sendmail_outbound_enable", Value: false},
		{Key: "syslogd_flags", Value: "-ss"},
	}
}

// DefaultSysctlConf returns the sysctl.conf keys every fetched release is configured with.
func DefaultSysctlConf() []jailconf.Setting {
	return []jailconf.Setting{
		{Key: "net.inet.ip.fw.enable", Value: 0},
	}
}
