package client

import "github.com/jsp-lqk/metapipe-redis/internal/resp"

// Command is a command name plus its arguments, immutable once built
type Command = resp.Command

// CommandName is the name of a redis command
type CommandName string

const (
	APPEND  CommandName = "APPEND"
	AUTH    CommandName = "AUTH"
	DBSIZE  CommandName = "DBSIZE"
	DECR    CommandName = "DECR"
	DEL     CommandName = "DEL"
	DISCARD CommandName = "DISCARD"
	ECHO    CommandName = "ECHO"
	EXEC    CommandName = "EXEC"
	EXISTS  CommandName = "EXISTS"
	EXPIRE  CommandName = "EXPIRE"
	FLUSHDB CommandName = "FLUSHDB"
	GET     CommandName = "GET"
	HGET    CommandName = "HGET"
	HSET    CommandName = "HSET"
	INCR    CommandName = "INCR"
	LPOP    CommandName = "LPOP"
	LPUSH   CommandName = "LPUSH"
	LRANGE  CommandName = "LRANGE"
	MGET    CommandName = "MGET"
	MSET    CommandName = "MSET"
	MULTI   CommandName = "MULTI"
	PING    CommandName = "PING"
	RPOP    CommandName = "RPOP"
	RPUSH   CommandName = "RPUSH"
	SADD    CommandName = "SADD"
	SELECT  CommandName = "SELECT"
	SET     CommandName = "SET"
	TTL     CommandName = "TTL"
	UNWATCH CommandName = "UNWATCH"
	WATCH   CommandName = "WATCH"
)

// Cmd builds a command. Arguments are converted with their natural text
// form: strings and byte slices as is, numbers in decimal, bools as 1 or 0.
//
//	client.Cmd(client.SET, "key", "")
func Cmd(name CommandName, args ...interface{}) Command {
	return resp.NewCommand(string(name)).With(args...)
}
