package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/FinCoachBack/internal/models"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 50
)

func pageParams(c *fiber.Ctx) (int, int) {
	page := parsePositiveInt(c.Query("page"), 1)
	limit := parsePositiveInt(c.Query("limit"), defaultPageLimit)
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return page, limit
}

func buildPaginationMeta(page, limit, total int) models.PaginationMeta {
	totalPages := 0
	if total > 0 {
		totalPages = (total + limit - 1) / limit
	}

	return models.PaginationMeta{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
	}
}

// paginate slices an already loaded list; pages past the end are empty.
func paginate[T any](items []T, page, limit int) ([]T, models.PaginationMeta) {
	meta := buildPaginationMeta(page, limit, len(items))
	start := (page - 1) * limit
	if start >= len(items) {
		return []T{}, meta
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end], meta
}
