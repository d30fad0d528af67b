package redisrepo

import "fmt"

const ns = "matchseats:v1"

func KeyConfirmed(matchID int64) string {
	return fmt.Sprintf("%s:match:%d:confirmed", ns, matchID)
}

// KeyConfirmedGen counts invalidations of the confirmed listing of a match.
func KeyConfirmedGen(matchID int64) string {
	return fmt.Sprintf("%s:match:%d:confirmed:gen", ns, matchID)
}

func KeyLock(name string) string {
	return fmt.Sprintf("%s:lock:%s", ns, name)
}

func ChannelPending() string {
	return ns + ":requests:pending"
}
