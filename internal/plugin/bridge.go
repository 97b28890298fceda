package plugin

import "countdownbot/internal/transport/telegram/router"

// Router API re-exported so plugins only import this package.

type Access = router.Access

const (
	AccessEveryone  = router.AccessEveryone
	AccessOwnerOnly = router.AccessOwnerOnly
)

type Command = router.Command

type Request = router.Request

type HandlerFunc = router.HandlerFunc
