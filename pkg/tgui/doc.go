// Package tgui builds Telegram HTML replies: escaped text, bold keys,
// preformatted blocks. Messages over the Telegram size limit are split by the
// adapter.
package tgui
