package repositories

import "github.com/lib/pq"

func pqInt64Array(ids []int64) interface{} {
	return pq.Array(ids)
}

func pqStringArray(values []string) interface{} {
	return pq.Array(values)
}
