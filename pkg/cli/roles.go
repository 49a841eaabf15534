package cli

import (
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/campus/pkg/rbac"
)

// NewRolesCommand creates the roles command group
func NewRolesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roles",
		Short: "Inspect the built-in roles",
	}
	cmd.AddCommand(newRolesMatrixCommand(rootOpts))
	return cmd
}

// MatrixRow is one system role of the permission matrix
type MatrixRow struct {
	Role        rbac.RoleName                         `json:"role"`
	Level       rbac.Level                            `json:"level"`
	Permissions map[rbac.Module]rbac.OperationSet     `json:"permissions"`
	Filters     map[rbac.ResourceType]rbac.FilterKind `json:"filters"`
}

func newRolesMatrixCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "matrix",
		Short: "Print the permission matrix of the system roles",
		Long: `Print what each system role may do on each module. In text output a
cell lists the granted operations as letters: V view, A add, C change,
D delete, P publish.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := PermissionMatrix()
			return newFormatter(rootOpts, cmd.OutOrStdout()).Result(rows, func(w io.Writer) error {
				return RenderMatrix(w, rows)
			})
		},
	}
}

// PermissionMatrix lists the system roles from most to least senior
func PermissionMatrix() []MatrixRow {
	rows := make([]MatrixRow, 0, len(rbac.SystemRoleNames()))
	for _, role := range rbac.SystemRoles() {
		row := MatrixRow{
			Role:        role.Name,
			Level:       role.Level,
			Permissions: make(map[rbac.Module]rbac.OperationSet),
			Filters:     make(map[rbac.ResourceType]rbac.FilterKind),
		}
		for _, module := range rbac.AllModules() {
			row.Permissions[module] = rbac.PermissionsFor(role, module)
		}
		for _, rt := range rbac.ResourceTypes() {
			if kind, err := rbac.KindFor(role, rt); err == nil {
				row.Filters[rt] = kind
			}
		}
		rows = append(rows, row)
	}
	return rows
}

var opLetters = map[rbac.Operation]string{
	rbac.OpView:    "V",
	rbac.OpAdd:     "A",
	rbac.OpChange:  "C",
	rbac.OpDelete:  "D",
	rbac.OpPublish: "P",
}

func opCode(s rbac.OperationSet) string {
	var b strings.Builder
	for _, op := range rbac.AllOperations() {
		if s.Has(op) {
			b.WriteString(opLetters[op])
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

// RenderMatrix writes rows as an aligned table, one column per module
func RenderMatrix(w io.Writer, rows []MatrixRow) error {
	table := [][]string{{"ROLE", "LEVEL"}}
	for _, module := range rbac.AllModules() {
		table[0] = append(table[0], strings.ToUpper(string(module)))
	}
	for _, row := range rows {
		cells := []string{string(row.Role), row.Level.String()}
		for _, module := range rbac.AllModules() {
			cells = append(cells, opCode(row.Permissions[module]))
		}
		table = append(table, cells)
	}

	widths := make([]int, len(table[0]))
	for _, cells := range table {
		for i, cell := range cells {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	for _, cells := range table {
		var b strings.Builder
		for i, cell := range cells {
			b.WriteString(cell)
			if i < len(cells)-1 {
				b.WriteString(strings.Repeat(" ", widths[i]-len(cell)+2))
			}
		}
		b.WriteByte('\n')
		if _, err := io.WriteString(w, b.String()); err != nil {
			return err
		}
	}
	return nil
}
