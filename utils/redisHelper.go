package utils

import (
	"os"
	"reflect"
	"strconv"
	"time"

	"bitbucket.org/minedudata/nexus_backend/config"
)

func GetCacheLifespan() time.Duration {
	lifespan, err := strconv.Atoi(os.Getenv("CACHE_LIFESPAN"))
	if err != nil {
		lifespan = 1
	}
	return time.Duration(lifespan) * time.Hour
}

// get type name of struct
func GetTypeName[T any]() string {
	var v T
	typeOfT := reflect.TypeOf(v)
	return typeOfT.Name()
}

/* Redis list caching for reference-catalog lookups */

func listKey[T any]() string {
	return GetTypeName[T]() + "List"
}

// store full catalog list
func StoreRedisList[T any](obj any) error {
	return config.SetRedisObject(listKey[T](), &obj, GetCacheLifespan())
}

// retrieve catalog list, nil if not cached
func RetrieveRedisList[T any]() ([]*T, error) {
	var results []*T
	exists, err := config.GetRedisObject(listKey[T](), &results)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	return results, nil
}

// drop cached list after a mutation
func RemoveRedisList[T any]() error {
	return config.RemoveRedisKey(listKey[T]())
}
