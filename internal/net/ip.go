package net

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// LinkScheme prefixes study-room share links: studyboard://host:port/session.
const LinkScheme = "studyboard"

// OutgoingIP finds the preferred local address to put in a share link.
func OutgoingIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return localIPFallback()
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}

// localIPFallback is used on networks without internet access.
func localIPFallback() string {
	addrs, err := net.InterfaceAddrs()
	if err == nil {
		for _, address := range addrs {
			if ipnet, ok := address.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
				return ipnet.IP.String()
			}
		}
	}
	slog.Warn("no suitable local IP found, share link uses loopback", "component", "net")
	return "127.0.0.1"
}

// ShareLink formats the link other participants use to join sessionID.
func ShareLink(host string, port int, sessionID string) string {
	return fmt.Sprintf("%s://%s/%s", LinkScheme, net.JoinHostPort(host, strconv.Itoa(port)), url.PathEscape(sessionID))
}

// ParseShareLink splits a share link into the server base URL and session id.
func ParseShareLink(link string) (baseURL, sessionID string, err error) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return "", "", fmt.Errorf("parse share link: %w", err)
	}
	if u.Scheme != LinkScheme {
		return "", "", fmt.Errorf("share link %q: want %s:// scheme", link, LinkScheme)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("share link %q: missing host", link)
	}
	sessionID = strings.Trim(u.Path, "/")
	if sessionID == "" {
		return "", "", fmt.Errorf("share link %q: missing session", link)
	}
	return "http://" + u.Host, sessionID, nil
}
