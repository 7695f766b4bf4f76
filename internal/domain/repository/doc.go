// Package repository define las interfaces de persistencia del callback OAuth.
//
// Son contratos de dominio independientes del motor: las implementaciones
// viven en internal/store/pg (pgx) e internal/store/sqlite (modernc).
//
//	callback.Engine ──► repository.Repositories ──► store/pg | store/sqlite
//
// Convenciones:
//   - Context siempre es el primer parámetro.
//   - TenancyID se pasa explícito en todo método tenant-scoped; el único
//     repositorio tenant-agnostic es OuterRequestRepository.
//   - "No existe" se reporta con ErrNotFound, duplicados con ErrConflict.
package repository
