package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"golang.org/x/sys/unix"

	"l2writer/internal/config"
	"l2writer/internal/productlist"
	"l2writer/internal/writer"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckProductList loads the product list, returning it when valid.
func CheckProductList(path string) (*productlist.Config, Result) {
	const name = "Product list"
	plist, err := productlist.Load(path)
	if err != nil {
		return nil, Result{Name: name, Detail: err.Error()}
	}
	return plist, Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d area(s))", path, len(plist.ProductList))}
}

// CheckPublisher verifies that at least one configured NATS server accepts a connection.
func CheckPublisher(ctx context.Context, cfg config.Publisher) Result {
	const name = "Publisher"
	if len(cfg.URLs) == 0 {
		return Result{Name: name, Detail: "missing urls"}
	}
	timeout := 5 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	conn, err := nats.Connect(strings.Join(cfg.URLs, ","),
		nats.Name(cfg.Name+"-preflight"),
		nats.Timeout(timeout),
		nats.NoReconnect(),
	)
	if err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	defer conn.Close()
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("connected to %s", conn.ConnectedUrlRedacted())}
}

// CheckObjectStore verifies the object store endpoint and credentials.
func CheckObjectStore(ctx context.Context, cfg config.ObjectStore) Result {
	const name = "Object store"
	sink, err := writer.NewObjectSink(cfg)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := sink.Ping(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable", cfg.Endpoint)}
}

func summarizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "check timed out (service unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "check timed out (service unreachable)"
	}
	return err.Error()
}
