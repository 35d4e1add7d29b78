// Package mathtools hosts the arithmetic tool set as an MCP server.
package mathtools

import (
	"context"
	"errors"
	"math"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dotcommander/toolchat/internal/calc"
)

// Name is the MCP server name.
const Name = "toolchat-math"

// NewServer returns an MCP server exposing every arithmetic tool.
func NewServer(version string) *server.MCPServer {
	s := server.NewMCPServer(
		Name,
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.AddTools(Tools()...)
	return s
}

// Tools returns the arithmetic tools and their handlers.
func Tools() []server.ServerTool {
	return []server.ServerTool{
		{
			Tool: mcp.NewTool("add",
				mcp.WithDescription("Add two numbers together."),
				mcp.WithNumber("a", mcp.Required(), mcp.Description("First number")),
				mcp.WithNumber("b", mcp.Required(), mcp.Description("Second number")),
			),
			Handler: binary(func(a, b float64) (float64, error) { return a + b, nil }),
		},
		{
			Tool: mcp.NewTool("subtract",
				mcp.WithDescription("Subtract b from a."),
				mcp.WithNumber("a", mcp.Required(), mcp.Description("The minuend")),
				mcp.WithNumber("b", mcp.Required(), mcp.Description("The subtrahend")),
			),
			Handler: binary(func(a, b float64) (float64, error) { return a - b, nil }),
		},
		{
			Tool: mcp.NewTool("multiply",
				mcp.WithDescription("Multiply two numbers."),
				mcp.WithNumber("a", mcp.Required(), mcp.Description("First factor")),
				mcp.WithNumber("b", mcp.Required(), mcp.Description("Second factor")),
			),
			Handler: binary(func(a, b float64) (float64, error) { return a * b, nil }),
		},
		{
			Tool: mcp.NewTool("divide",
				mcp.WithDescription("Divide a by b."),
				mcp.WithNumber("a", mcp.Required(), mcp.Description("The dividend")),
				mcp.WithNumber("b", mcp.Required(), mcp.Description("The divisor (must not be zero)")),
			),
			Handler: binary(func(a, b float64) (float64, error) {
				if b == 0 {
					return 0, calc.ErrDivideByZero
				}
				return a / b, nil
			}),
		},
		{
			Tool: mcp.NewTool("power",
				mcp.WithDescription("Raise base to the power of exponent."),
				mcp.WithNumber("base", mcp.Required(), mcp.Description("The base number")),
				mcp.WithNumber("exponent", mcp.Required(), mcp.Description("The exponent")),
			),
			Handler: handlePower,
		},
		{
			Tool: mcp.NewTool("square_root",
				mcp.WithDescription("Calculate the square root of a number."),
				mcp.WithNumber("x", mcp.Required(), mcp.Description("The number (must be non-negative)")),
			),
			Handler: handleSquareRoot,
		},
		{
			Tool: mcp.NewTool("calculate",
				mcp.WithDescription("Evaluate an arithmetic expression using + - * / ^ and parentheses."),
				mcp.WithString("expression", mcp.Required(), mcp.Description("The expression, e.g. (3 + 5) * 12")),
			),
			Handler: handleCalculate,
		},
	}
}

var errNegativeRoot = errors.New("Cannot calculate square root of a negative number") //nolint:staticcheck

func binary(fn func(a, b float64) (float64, error)) server.ToolHandlerFunc {
	return func(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		a, err := request.RequireFloat("a")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		b, err := request.RequireFloat("b")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return result(fn(a, b))
	}
}

func handlePower(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	base, err := request.RequireFloat("base")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	exp, err := request.RequireFloat("exponent")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return result(math.Pow(base, exp), nil)
}

func handleSquareRoot(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	x, err := request.RequireFloat("x")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if x < 0 {
		return result(0, errNegativeRoot)
	}
	return result(math.Sqrt(x), nil)
}

func handleCalculate(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	expr, err := request.RequireString("expression")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return result(calc.Eval(expr))
}

func result(v float64, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return mcp.NewToolResultError("Result is not a finite number"), nil
	}
	return mcp.NewToolResultText(calc.Format(v)), nil
}
