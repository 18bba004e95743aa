package network

import "os"

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

// Info is the host network state.
type Info struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// ReadInfo reads the network state from the environment. It returns nil when
// NETWORK_STATUS is unset.
func ReadInfo() *Info {
	return readInfo(os.Getenv)
}

func readInfo(getenv func(string) string) *Info {
	s := getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &Info{
		Type:       getenv(envNetworkType),
		IP:         getenv(envNetworkIP),
		Status:     s,
		Gateway:    getenv(envNetworkGateway),
		WifiStatus: getenv(envNetworkWifiStatus),
		SSID:       getenv(envNetworkWifiSSID),
	}
}

func (i *Info) equal(o *Info) bool {
	if i == nil || o == nil {
		return i == o
	}
	return *i == *o
}
