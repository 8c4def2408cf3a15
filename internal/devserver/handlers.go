package devserver

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
)

type uploadHandler struct {
	store        *Store
	maxChunkSize int64
}

func (h *uploadHandler) Upload(ctx *gin.Context) {
	var arg CommitArg
	if !h.bindArg(ctx, &arg) {
		return
	}

	meta, rerr := h.store.Put(h.body(ctx), &arg)
	if rerr != nil {
		abortWithError(ctx, rerr)
		return
	}
	ctx.PureJSON(http.StatusOK, meta)
}

func (h *uploadHandler) SessionStart(ctx *gin.Context) {
	var arg StartArg
	if !h.bindArg(ctx, &arg) {
		return
	}

	id, rerr := h.store.Start(h.body(ctx))
	if rerr != nil {
		abortWithError(ctx, rerr)
		return
	}
	ctx.PureJSON(http.StatusOK, StartResult{SessionID: id})
}

func (h *uploadHandler) SessionAppend(ctx *gin.Context) {
	var arg AppendArg
	if !h.bindArg(ctx, &arg) {
		return
	}

	if rerr := h.store.Append(h.body(ctx), &arg.Cursor); rerr != nil {
		abortWithError(ctx, rerr)
		return
	}
	ctx.PureJSON(http.StatusOK, nil)
}

func (h *uploadHandler) SessionFinish(ctx *gin.Context) {
	var arg FinishArg
	if !h.bindArg(ctx, &arg) {
		return
	}

	meta, rerr := h.store.Finish(h.body(ctx), &arg.Cursor, &arg.Commit)
	if rerr != nil {
		abortWithError(ctx, rerr)
		return
	}
	ctx.PureJSON(http.StatusOK, meta)
}

func (h *uploadHandler) bindArg(ctx *gin.Context, v any) bool {
	raw := ctx.GetHeader(HeaderAPIArg)
	if raw == "" {
		abortBadInput(ctx, fmt.Errorf("missing %s header", HeaderAPIArg))
		return false
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		abortBadInput(ctx, fmt.Errorf("could not decode input as JSON: %w", err))
		return false
	}
	return true
}

func (h *uploadHandler) body(ctx *gin.Context) io.Reader {
	return http.MaxBytesReader(ctx.Writer, ctx.Request.Body, h.maxChunkSize)
}

func HealthHandler(ctx *gin.Context) {
	ctx.PureJSON(http.StatusOK, gin.H{"status": "ok"})
}
